package model

import "golang.org/x/text/unicode/norm"

// NormalizeLabel returns the NFC form of a label or description. Clients on
// different platforms may submit the same text in composed or decomposed
// form; comparing normalized values keeps such resubmissions from registering
// as changes.
func NormalizeLabel(s string) string {
	return norm.NFC.String(s)
}
