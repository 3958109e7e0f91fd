package payment

import (
	"strings"

	"github.com/framelabid/framelab/app/models"
)

// Raw gateway vocabulary, before normalization.
const (
	rawStatusCapture    = "capture"
	rawStatusSettlement = "settlement"
	rawStatusPending    = "pending"
	rawStatusDeny       = "deny"
	rawStatusCancel     = "cancel"
	rawStatusExpire     = "expire"

	fraudStatusAccept    = "accept"
	fraudStatusChallenge = "challenge"
)

// NormalizeStatus collapses the gateway's transaction/fraud status pair into
// the ledger's status model. A capture only counts as paid when the fraud
// check accepted it; a challenged capture stays pending until the gateway
// settles the review; any other fraud outcome is a deny.
func NormalizeStatus(transactionStatus, fraudStatus string) string {
	ts := strings.ToLower(strings.TrimSpace(transactionStatus))
	fs := strings.ToLower(strings.TrimSpace(fraudStatus))

	switch ts {
	case rawStatusCapture:
		switch fs {
		case fraudStatusAccept, "":
			return models.TransactionStatusSettlement
		case fraudStatusChallenge:
			return models.TransactionStatusPending
		default:
			return models.TransactionStatusDeny
		}
	case rawStatusSettlement:
		return models.TransactionStatusSettlement
	case rawStatusPending:
		return models.TransactionStatusPending
	case rawStatusDeny:
		return models.TransactionStatusDeny
	case rawStatusCancel:
		return models.TransactionStatusCancel
	case rawStatusExpire:
		return models.TransactionStatusExpire
	default:
		return models.TransactionStatusFailed
	}
}
