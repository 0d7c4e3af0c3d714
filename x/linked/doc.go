/*
Package linked finds out which key can sign for an account.

An account can be controlled by other accounts in two ways: a group
(multisig) account by its members and a proxied account by its delegates.
Both relations nest, so the accounts linked to a target form a tree that is
discovered by querying the chain and the group index.

Build discovers the tree, Resolve computes for every account in the tree the
steps that turn a signature of that account into one that is valid for the
root and ResolveSigner applies the proxy steps to a signer.
*/
package linked
