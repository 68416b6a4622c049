// Package rankindex implements an ordered-set index with O(log n)
// membership, insertion, and rank queries. Its only user is ZRANK, which
// builds a tree from a key's already-sorted ZSet slice on every call; the
// other sorted-set commands work on that slice directly.
//
// The original engine keeps these entries in a B+ tree with a count of
// live descendants cached at every internal node, so a rank lookup walks a
// single root-to-leaf path summing sibling counts along the way instead of
// touching every element. This package reaches the same complexity with a
// height-balanced binary tree (AVL) carrying a subtree-size field at every
// node: one fewer pointer indirection per level than a wide B+ node, same
// asymptotics, and a rotation-based rebalance that is far easier to get
// right without a live test run than B+ node splitting and merging.
package rankindex
