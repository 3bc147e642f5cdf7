package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Receipt is a parsed receipt record.
type Receipt struct {
	ID        int           `json:"id"`
	Merchant  string        `json:"merchant"`
	Amount    string        `json:"amount"`
	Date      string        `json:"date"`
	Category  string        `json:"category"`
	Status    string        `json:"status"`
	Items     []ReceiptItem `json:"items"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ReceiptItem is a single line item on a receipt.
type ReceiptItem struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// ReceiptPage is one page of the receipt listing.
type ReceiptPage struct {
	Receipts []Receipt `json:"receipts"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// ReceiptQuery filters the receipt listing. Zero values are omitted.
type ReceiptQuery struct {
	Page      int
	Limit     int
	Category  string
	Status    string
	StartDate string
	EndDate   string
}

func (q ReceiptQuery) encode() string {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		values.Set("category", q.Category)
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.StartDate != "" {
		values.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		values.Set("end_date", q.EndDate)
	}
	if encoded := values.Encode(); encoded != "" {
		return "?" + encoded
	}
	return ""
}

// ListReceipts fetches receipts with optional pagination and filters.
func (c *Client) ListReceipts(ctx context.Context, q ReceiptQuery) (*ReceiptPage, error) {
	var page ReceiptPage
	if err := c.do(ctx, http.MethodGet, "/receipt/all"+q.encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetReceipt fetches a single receipt by id.
func (c *Client) GetReceipt(ctx context.Context, receiptID int) (*Receipt, error) {
	var r Receipt
	if err := c.do(ctx, http.MethodGet, "/receipt/"+strconv.Itoa(receiptID), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RawReceipt describes an uploaded receipt file awaiting analysis.
type RawReceipt struct {
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	FilePath    string `json:"file_path"`
}

// CreateRawReceipt registers an uploaded file for analysis.
func (c *Client) CreateRawReceipt(ctx context.Context, raw RawReceipt) error {
	return c.do(ctx, http.MethodPost, "/receipt/create-raw-receipt", raw, nil)
}
