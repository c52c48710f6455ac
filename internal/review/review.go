// Package review реализует рассмотрение администратором заявок на пополнение и вывод.
package review

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/validation"
)

// Resolver применяет решение к балансам.
type Resolver interface {
	ResolveDeposit(ctx context.Context, depositID uuid.UUID, res ledger.Resolution) (*model.Deposit, error)
	ResolveWithdrawal(ctx context.Context, withdrawalID uuid.UUID, res ledger.Resolution) (*model.Withdrawal, error)
}

// Profiles читает счета администраторов и владельцев заявок.
type Profiles interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
}

// Notifier сообщает владельцу заявки о решении.
type Notifier interface {
	DepositReviewed(ctx context.Context, to string, d model.Deposit) error
	WithdrawalReviewed(ctx context.Context, to string, w model.Withdrawal) error
}

// Decision описывает решение администратора по заявке.
type Decision struct {
	TargetID uuid.UUID     `json:"targetId"`
	Outcome  model.Outcome `json:"outcome"`
	Note     string        `json:"note,omitempty"`
	TxHash   string        `json:"txHash,omitempty"`
}

func (d *Decision) normalize() error {
	d.Note = strings.TrimSpace(d.Note)
	d.TxHash = strings.TrimSpace(d.TxHash)

	if d.TargetID == uuid.Nil {
		return model.Invalid("targetId is required")
	}
	switch d.Outcome {
	case model.OutcomeApprove:
	case model.OutcomeReject:
		if d.Note == "" {
			return model.Invalid("rejection reason is required")
		}
	default:
		return model.Invalid("outcome must be approve or reject")
	}
	return nil
}

// Workflow проводит заявки через переходы pending -> {confirmed|completed, rejected}.
type Workflow struct {
	resolver Resolver
	profiles Profiles
	notifier Notifier
	logger   *zap.Logger
}

func NewWorkflow(resolver Resolver, profiles Profiles, notifier Notifier, logger *zap.Logger) *Workflow {
	return &Workflow{resolver: resolver, profiles: profiles, notifier: notifier, logger: logger}
}

func (w *Workflow) requireAdmin(ctx context.Context, actorID uuid.UUID) error {
	actor, err := w.profiles.GetProfile(ctx, actorID)
	if err != nil {
		return model.Dependency("load reviewer", err)
	}
	if actor.Role != model.RoleAdmin {
		return model.ErrUnauthorized
	}
	return nil
}

// ReviewDeposit подтверждает или отклоняет заявку на пополнение от имени администратора actorID.
func (w *Workflow) ReviewDeposit(ctx context.Context, actorID uuid.UUID, d Decision) (*model.Deposit, error) {
	if err := d.normalize(); err != nil {
		return nil, err
	}
	if err := w.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	deposit, err := w.resolver.ResolveDeposit(ctx, d.TargetID, ledger.Resolution{
		Outcome: d.Outcome,
		ActorID: actorID,
		Note:    d.Note,
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("deposit reviewed",
		zap.String("deposit", deposit.ID.String()),
		zap.String("status", string(deposit.Status)),
		zap.String("reviewer", actorID.String()),
	)

	if to := w.ownerEmail(ctx, deposit.UserID); to != "" {
		if err := w.notifier.DepositReviewed(ctx, to, *deposit); err != nil {
			w.logger.Warn("deposit review notification failed", zap.Error(err))
		}
	}
	return deposit, nil
}

// ReviewWithdrawal завершает или отклоняет заявку на вывод. Для одобрения нужен хэш исходящей транзакции.
func (w *Workflow) ReviewWithdrawal(ctx context.Context, actorID uuid.UUID, d Decision) (*model.Withdrawal, error) {
	if err := d.normalize(); err != nil {
		return nil, err
	}
	if d.Outcome == model.OutcomeApprove {
		if d.TxHash == "" {
			return nil, model.Invalid("txHash is required to approve a withdrawal")
		}
		if !validation.IsValidTxHash(d.TxHash) {
			return nil, model.Invalid("malformed txHash %q", d.TxHash)
		}
	}
	if err := w.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	withdrawal, err := w.resolver.ResolveWithdrawal(ctx, d.TargetID, ledger.Resolution{
		Outcome: d.Outcome,
		ActorID: actorID,
		Note:    d.Note,
		TxHash:  d.TxHash,
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("withdrawal reviewed",
		zap.String("withdrawal", withdrawal.ID.String()),
		zap.String("status", string(withdrawal.Status)),
		zap.String("reviewer", actorID.String()),
	)

	if to := w.ownerEmail(ctx, withdrawal.UserID); to != "" {
		if err := w.notifier.WithdrawalReviewed(ctx, to, *withdrawal); err != nil {
			w.logger.Warn("withdrawal review notification failed", zap.Error(err))
		}
	}
	return withdrawal, nil
}

func (w *Workflow) ownerEmail(ctx context.Context, userID uuid.UUID) string {
	owner, err := w.profiles.GetProfile(ctx, userID)
	if err != nil {
		w.logger.Warn("load owner for notification failed", zap.Error(err))
		return ""
	}
	return owner.Email
}
