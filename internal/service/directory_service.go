package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vignex/escrow-engine/internal/domain"
)

// DirectoryService is the read-only trade index. Everything here is derived
// from the authoritative trade records and rebuildable from a full scan.
type DirectoryService struct {
	trades domain.TradeStore
	logger *slog.Logger
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(trades domain.TradeStore, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{trades: trades, logger: logger}
}

// TradesForUser returns trades where the user is maker or taker.
func (s *DirectoryService) TradesForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("directory_service: trades for user %q: %w", userID, err)
	}
	return trades, nil
}

// TradesForAd returns all trades taken against an advertisement.
func (s *DirectoryService) TradesForAd(ctx context.Context, adID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByAd(ctx, adID, opts)
	if err != nil {
		return nil, fmt.Errorf("directory_service: trades for ad %q: %w", adID, err)
	}
	return trades, nil
}

// PendingForMerchant returns a merchant's trades awaiting their
// verification.
func (s *DirectoryService) PendingForMerchant(ctx context.Context, merchantID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMakerStatus(ctx, merchantID, domain.TradeStatusWaitingVerification, opts)
	if err != nil {
		return nil, fmt.Errorf("directory_service: pending for merchant %q: %w", merchantID, err)
	}
	return trades, nil
}
