/*
Package submit drives the submission of a signed call.

A Machine runs at most one attempt at a time. A submit request that arrives
while an attempt is in progress is dropped, so that repeated clicks never
submit twice. An attempt ends in Finalized, Invalid or Error, each of which
accepts a new request.

Signers that approve calls as members of a group account are built with
AsMultisigMember, or with BuildSigner for a resolved path.
*/
package submit
