// Package tent builds Tent protocol requests and reads protocol-level
// response details such as the meta post Link header.
package tent
