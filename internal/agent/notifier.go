package agent

import "context"

// notifier turns trade engine milestones into public kind-1 chatter.
// Callbacks arrive on the relay listen goroutine; the chat generator
// and postChat are safe there.
type notifier struct{ a *Agent }

func (n *notifier) OfferAccepted(buyerPubKey, programName string, sats int64) {
	a := n.a
	a.postChat(context.Background(), a.chat.TradeAccept(a.nameOf(buyerPubKey), programName, sats))
}

func (n *notifier) OfferRejected(programName string) {
	a := n.a
	a.postChat(context.Background(), a.chat.TradeReject(programName))
}

func (n *notifier) PaymentSent(sats int64) {
	a := n.a
	a.postChat(context.Background(), a.chat.PaymentSent(sats))
}

func (n *notifier) CompletedAsBuyer(sellerPubKey, programName string, sats int64) {
	a := n.a
	a.postChat(context.Background(), a.chat.TradeCompleteBuyer(a.nameOf(sellerPubKey), programName, sats))
}

func (n *notifier) CompletedAsSeller(buyerPubKey, programName string, sats int64) {
	a := n.a
	a.postChat(context.Background(), a.chat.TradeCompleteSeller(a.nameOf(buyerPubKey), programName, sats))
}
