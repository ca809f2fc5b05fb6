/*
Package hci contains the vocabulary of the Bluetooth host controller interface
events and commands used by the neighbor discovery scenarios, together with
stream predicates to assert on them.

The core stream packages know nothing about HCI; this package only provides
event values and EventP predicates (CommandComplete, InquiryResult,
RemoteName, etc.) to use with stream.Matcher and the streamtest assertions.
*/
package hci
