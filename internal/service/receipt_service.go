package service

import (
	"context"
	"fmt"

	"github.com/botforge/trading-service/internal/adapter/email"
	"github.com/botforge/trading-service/internal/domain/entity"
	"github.com/botforge/trading-service/internal/platform/logger"
)

type ReceiptService interface {
	SendTradeReceipt(ctx context.Context, recipientEmail, eventName, offerName string, result entity.TradeExecutionResult) error
}

type receiptService struct {
	sender email.EmailSender
	log    logger.Logger
}

func NewReceiptService(sender email.EmailSender, log logger.Logger) ReceiptService {
	return &receiptService{
		sender: sender,
		log:    log,
	}
}

func (s *receiptService) SendTradeReceipt(ctx context.Context, recipientEmail, eventName, offerName string, result entity.TradeExecutionResult) error {
	if !result.Success {
		return fmt.Errorf("cannot send receipt for a failed trade")
	}
	if recipientEmail == "" {
		return fmt.Errorf("recipient email cannot be empty")
	}

	body := fmt.Sprintf(
		"Transaction ID: %s\nEvent: %s\nOffer: %s\nExecuted At: %s\n\nItems given:\n",
		result.TransactionID,
		eventName,
		offerName,
		result.Timestamp.Format("2006-01-02 15:04:05 MST"),
	)
	for _, item := range result.ItemsGiven {
		body += fmt.Sprintf("- %s x%d\n", item.ItemName, item.Quantity)
	}
	body += "\nItems received:\n"
	for _, item := range result.ItemsReceived {
		body += fmt.Sprintf("- %s x%d\n", item.ItemName, item.Quantity)
	}

	subject := fmt.Sprintf("Trade receipt: %s", offerName)
	if err := s.sender.Send(ctx, []string{recipientEmail}, subject, "", body); err != nil {
		s.log.Errorf("Failed to send trade receipt for transaction %s: %v", result.TransactionID, err)
		return fmt.Errorf("failed to send trade receipt: %w", err)
	}

	s.log.Infof("Trade receipt for transaction %s sent to %s", result.TransactionID, recipientEmail)
	return nil
}
