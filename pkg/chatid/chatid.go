// Package chatid derives canonical conversation identifiers.
//
// A conversation is keyed by the unordered pair of participants plus the item
// being discussed, so both sides independently compute the same id and land on
// the same document no matter who starts the conversation.
package chatid

// Derive returns the conversation id for a participant pair and an item.
// The two participant ids are interchangeable: Derive(a, b, i) == Derive(b, a, i).
// Callers must not pass empty identifiers.
func Derive(participantA, participantB, itemID string) string {
	if participantB < participantA {
		participantA, participantB = participantB, participantA
	}
	return participantA + "_" + participantB + "_" + itemID
}
