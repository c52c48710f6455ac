// Package notify отправляет пользователям уведомления о движении средств.
// Доставка best-effort: ошибки возвращаются вызывающему коду только для логирования.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

// Kind определяет тип уведомления.
type Kind string

const (
	KindROICredited         Kind = "roi_credited"
	KindSubscription        Kind = "subscription_confirmed"
	KindDepositConfirmed    Kind = "deposit_confirmed"
	KindDepositRejected     Kind = "deposit_rejected"
	KindWithdrawalCompleted Kind = "withdrawal_completed"
	KindWithdrawalRejected  Kind = "withdrawal_rejected"
)

// Message описывает уведомление, передаваемое почтовому сервису.
type Message struct {
	Kind       Kind      `json:"kind"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	PlanName   string    `json:"plan_name,omitempty"`
	Amount     string    `json:"amount"`
	Percentage string    `json:"percentage,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Note       string    `json:"note,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sender доставляет готовое сообщение.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier строит сообщения о событиях ledger и передаёт их Sender.
type Notifier struct {
	sender Sender
	now    func() time.Time
}

// New создаёт Notifier.
func New(sender Sender) *Notifier {
	return &Notifier{sender: sender, now: time.Now}
}

func (n *Notifier) send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notify %s: empty destination", msg.Kind)
	}
	msg.CreatedAt = n.now().UTC()
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify %s: %w", msg.Kind, err)
	}
	return nil
}

// ROICredited сообщает владельцу позиции о начислении доходности.
func (n *Notifier) ROICredited(ctx context.Context, to, planName string, amount, percentage decimal.Decimal) error {
	return n.send(ctx, Message{
		Kind:       KindROICredited,
		To:         to,
		Subject:    "ROI Credited: " + planName,
		PlanName:   planName,
		Amount:     amount.StringFixed(2),
		Percentage: percentage.String(),
	})
}

// SubscriptionConfirmed сообщает об открытии позиции.
func (n *Notifier) SubscriptionConfirmed(ctx context.Context, to, planName string, amount decimal.Decimal) error {
	return n.send(ctx, Message{
		Kind:     KindSubscription,
		To:       to,
		Subject:  "Investment Plan Subscription: " + planName,
		PlanName: planName,
		Amount:   amount.StringFixed(2),
	})
}

// DepositReviewed сообщает о решении по заявке на пополнение.
func (n *Notifier) DepositReviewed(ctx context.Context, to string, d model.Deposit) error {
	msg := Message{
		To:       to,
		Amount:   d.Amount.StringFixed(2),
		Currency: d.Currency,
		Note:     d.AdminNotes,
	}
	if d.Status == model.DepositConfirmed {
		msg.Kind = KindDepositConfirmed
		msg.Subject = "Deposit Confirmed"
	} else {
		msg.Kind = KindDepositRejected
		msg.Subject = "Deposit Rejected"
	}
	return n.send(ctx, msg)
}

// WithdrawalReviewed сообщает о решении по заявке на вывод.
func (n *Notifier) WithdrawalReviewed(ctx context.Context, to string, w model.Withdrawal) error {
	msg := Message{
		To:       to,
		Amount:   w.NetAmount.StringFixed(2),
		Currency: w.Currency,
		Note:     w.AdminNotes,
		TxHash:   w.TxHash,
	}
	if w.Status == model.WithdrawalCompleted {
		msg.Kind = KindWithdrawalCompleted
		msg.Subject = "Withdrawal Completed"
	} else {
		msg.Kind = KindWithdrawalRejected
		msg.Subject = "Withdrawal Rejected"
	}
	return n.send(ctx, msg)
}
