// Package expect stores reference fingerprints of what on-topic, correct
// worker output should resemble, behind a bounded LRU fast tier and a
// durable SQLite tier. The drift monitor reads it during execution; the
// curator reads recorded failure motifs to down-rank similar candidates in
// later passes.
package expect
