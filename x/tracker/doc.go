/*
Package tracker follows the approvals of a pending multisig operation.

An operation is identified by the group account and the hash of the call it
executes. The chain keeps a record of it from the first approval until the
call is executed or cancelled, so a missing record means that nobody approved
yet.
*/
package tracker
