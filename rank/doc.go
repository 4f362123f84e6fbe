// Package rank orders curation candidates with Maximal Marginal Relevance,
// trading raw relevance against redundancy with the already-selected set.
package rank
