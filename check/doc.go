// Package check contains the stages of the mailverify pipeline: the syntax
// checker, the domain resolver and the SMTP prober. They can be used on
// their own, but most callers go through the Validator in
// github.com/studiocloud/mailverify, which wires them together.
package check
