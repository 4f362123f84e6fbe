// Package packer selects the final contents of a context pack under a hard
// global token budget and per-section caps, using a greedy density
// knapsack approximation.
package packer
