/*
Package msigtest provides helpers and fakes for testing msigproxy packages
without a network.
*/
package msigtest
