package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/optionpay/payout-service/internal/domain/services/reconcile"
	"github.com/optionpay/payout-service/internal/domain/services/withdrawal"
	"github.com/optionpay/payout-service/pkg/logger"
)

// Both notifier implementations serve the withdrawal and reconcile
// services through one value.
var (
	_ withdrawal.NotificationService = (*Notifier)(nil)
	_ reconcile.NotificationService  = (*Notifier)(nil)
	_ withdrawal.NotificationService = NopNotifier{}
	_ reconcile.NotificationService  = NopNotifier{}
)

// Sender abstracts email delivery so tests can capture sends.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlContent, textContent string) error
}

// EmailLookup resolves a user id to a deliverable address.
type EmailLookup interface {
	GetEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier formats and sends withdrawal lifecycle notifications.
type Notifier struct {
	sender Sender
	users  EmailLookup
	logger *logger.Logger
}

// NewNotifier creates a new withdrawal notifier.
func NewNotifier(sender Sender, users EmailLookup, log *logger.Logger) *Notifier {
	return &Notifier{sender: sender, users: users, logger: log}
}

// NotifyWithdrawalApproved tells the user their payout went out.
func (n *Notifier) NotifyWithdrawalApproved(ctx context.Context, userID uuid.UUID, amountMinor int64, method string) error {
	body := fmt.Sprintf("Your withdrawal of %s via %s has been sent. Depending on the payout method it can take a few business days to arrive.",
		formatAmount(amountMinor), method)
	return n.send(ctx, userID, "Withdrawal sent", "On its way.", body)
}

// NotifyWithdrawalFailed tells the user their payout did not go through.
func (n *Notifier) NotifyWithdrawalFailed(ctx context.Context, userID uuid.UUID, amountMinor int64, reason string) error {
	body := fmt.Sprintf("Your withdrawal of %s could not be completed (%s). Any debited funds have been returned to your balance.",
		formatAmount(amountMinor), reason)
	return n.send(ctx, userID, "Withdrawal failed", "That didn't go through.", body)
}

// NotifyWithdrawalPendingReview tells the user their request awaits review.
func (n *Notifier) NotifyWithdrawalPendingReview(ctx context.Context, userID uuid.UUID, amountMinor int64) error {
	body := fmt.Sprintf("Your withdrawal of %s is above the automatic approval limit and is being reviewed. You'll hear from us within one business day.",
		formatAmount(amountMinor))
	return n.send(ctx, userID, "Withdrawal under review", "We're taking a look.", body)
}

// NotifyWithdrawalReversed tells the user a sent payout bounced back.
func (n *Notifier) NotifyWithdrawalReversed(ctx context.Context, userID uuid.UUID, amountMinor int64, reason string) error {
	body := fmt.Sprintf("Your withdrawal of %s was returned by the payout provider and the funds are back in your balance.",
		formatAmount(amountMinor))
	if reason != "" {
		body = fmt.Sprintf("%s Provider message: %s", body, reason)
	}
	return n.send(ctx, userID, "Withdrawal returned", "Your funds are back.", body)
}

func (n *Notifier) send(ctx context.Context, userID uuid.UUID, subject, heading, body string) error {
	email, err := n.users.GetEmail(ctx, userID)
	if err != nil {
		n.logger.Warn("No deliverable address for user", "user_id", userID.String(), "error", err)
		return err
	}
	return n.sender.Send(ctx, email, subject, renderEmail(heading, body), fmt.Sprintf("%s\n\n%s\n\n— OptionPay", heading, body))
}

func formatAmount(amountMinor int64) string {
	return "$" + decimal.NewFromInt(amountMinor).Shift(-2).StringFixed(2)
}

// NopNotifier drops all notifications. Used when no email credentials
// are configured.
type NopNotifier struct{}

func (NopNotifier) NotifyWithdrawalApproved(context.Context, uuid.UUID, int64, string) error {
	return nil
}

func (NopNotifier) NotifyWithdrawalFailed(context.Context, uuid.UUID, int64, string) error {
	return nil
}

func (NopNotifier) NotifyWithdrawalPendingReview(context.Context, uuid.UUID, int64) error {
	return nil
}

func (NopNotifier) NotifyWithdrawalReversed(context.Context, uuid.UUID, int64, string) error {
	return nil
}
