package tda

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// GetOrders returns all orders on the account.
func (c *Client) GetOrders(ctx context.Context, accountID string) ([]OrderStrategy, error) {
	var orders []OrderStrategy
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/accounts/" + accountID + "/orders",
	}, &orders)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return orders, nil
}

// GetOrder returns a single order by broker id.
func (c *Client) GetOrder(ctx context.Context, accountID, orderID string) (*OrderStrategy, error) {
	var order OrderStrategy
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/accounts/" + accountID + "/orders/" + orderID,
	}, &order)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &order, nil
}

// PlaceOrder submits a new order strategy. Returns the broker order id, or
// an empty id when the broker rejected the order (the rejection has been
// surfaced as a brokerage message).
func (c *Client) PlaceOrder(ctx context.Context, accountID string, strategy *OrderStrategy) (string, error) {
	header, ok, err := c.execute(ctx, restRequest{
		method: http.MethodPost,
		path:   "/accounts/" + accountID + "/orders",
		body:   strategy,
	}, nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return orderIDFromLocation(header.Get("Location")), nil
}

// ReplaceOrder replaces a working order. The broker cancels the original and
// issues a new order id, returned here.
func (c *Client) ReplaceOrder(ctx context.Context, accountID, orderID string, strategy *OrderStrategy) (string, error) {
	header, ok, err := c.execute(ctx, restRequest{
		method: http.MethodPut,
		path:   "/accounts/" + accountID + "/orders/" + orderID,
		body:   strategy,
	}, nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return orderIDFromLocation(header.Get("Location")), nil
}

// CancelOrder cancels a working order. Returns false when the broker
// rejected the cancellation.
func (c *Client) CancelOrder(ctx context.Context, accountID, orderID string) (bool, error) {
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodDelete,
		path:   "/accounts/" + accountID + "/orders/" + orderID,
	}, nil)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// GetAccount returns account balances, optionally with positions.
func (c *Client) GetAccount(ctx context.Context, accountID string, withPositions bool) (*SecuritiesAccount, error) {
	query := url.Values{}
	if withPositions {
		query.Set("fields", "positions")
	}

	var account SecuritiesAccount
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/accounts/" + accountID,
		query:  query,
		root:   "securitiesAccount",
	}, &account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// GetUserPrincipals returns user principal data; fields selects additional
// sections (e.g. streamerConnectionInfo, streamerSubscriptionKeys).
func (c *Client) GetUserPrincipals(ctx context.Context, fields ...string) (*UserPrincipal, error) {
	query := url.Values{}
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}

	var principal UserPrincipal
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/userprincipals",
		query:  query,
	}, &principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &principal, nil
}

// orderIDFromLocation extracts the broker order id from the Location header
// returned on order creation.
func orderIDFromLocation(location string) string {
	if location == "" {
		return ""
	}
	idx := strings.LastIndex(location, "/")
	if idx < 0 || idx == len(location)-1 {
		return ""
	}
	return location[idx+1:]
}
