package tessera

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// API paths, matching the platform's public v1 routes.
const (
	refreshTokenPath = "/api/v1/users/refresh-token/"

	loginPath          = "/api/v1/users/login/"
	verifyLoginOTPPath = "/api/v1/users/verify-login-otp/"
	mePath             = "/api/v1/users/me/"
	profilePath        = "/api/v1/users/profile/"

	publicEventsPath = "/api/v1/public/events/"

	ticketBookPath  = "/api/v1/tickets/book/"
	userTicketsPath = "/api/v1/users/tickets/"

	checkinVerifyPath = "/api/v1/checkin/verify/"
	checkinNFCPath    = "/api/v1/checkin/nfc/"
)

// Customer is the storefront user profile.
type Customer struct {
	ID           string `json:"id"`
	MobileNumber string `json:"mobile_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
}

// Event is a public event listing.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	VenueName   string    `json:"venue_name"`
	StartsAt    time.Time `json:"start_date"`
	EndsAt      time.Time `json:"end_date"`
	IsFeatured  bool      `json:"is_featured"`
}

// TicketType is a purchasable ticket category for an event.
type TicketType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Available int    `json:"available"`
}

// Ticket is a customer-owned ticket.
type Ticket struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	TicketTypeID string     `json:"ticket_type_id"`
	Status       string     `json:"status"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
}

// ScanResult is the usher portal's verdict for one scanned card or QR code.
type ScanResult struct {
	Valid    bool    `json:"valid"`
	Reason   string  `json:"reason"`
	Ticket   *Ticket `json:"ticket,omitempty"`
	Attendee string  `json:"attendee_name,omitempty"`
}

// RequestLoginOTP asks the platform to send a login OTP to the given mobile
// number. Unauthenticated by design.
func (c *Client) RequestLoginOTP(ctx context.Context, mobileNumber string) error {
	_, err := c.Call(ctx, Request{
		Method:   http.MethodPost,
		Path:     loginPath,
		Body:     map[string]string{"mobile_number": mobileNumber},
		SkipAuth: true,
	})
	return err
}

// loginResponse is the token-issuing response shared by login and refresh.
type loginResponse struct {
	Access   string    `json:"access"`
	Refresh  string    `json:"refresh"`
	Customer *Customer `json:"customer"`
}

// VerifyLoginOTP exchanges the OTP for a credential pair, stores it, and
// returns the signed-in customer (when the backend includes one).
func (c *Client) VerifyLoginOTP(ctx context.Context, mobileNumber, otpCode string) (*Customer, error) {
	resp, err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   verifyLoginOTPPath,
		Body: map[string]string{
			"mobile_number": mobileNumber,
			"otp_code":      otpCode,
		},
		SkipAuth: true,
	})
	if err != nil {
		return nil, err
	}
	var out loginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Access != "" {
		creds := NewCredentials(out.Access, out.Refresh)
		if err := c.store.Save(ctx, creds); err != nil && c.logger != nil {
			c.logger.Warn("failed to persist credentials after login", "error", err.Error())
		}
	}
	return out.Customer, nil
}

// RefreshSession forces a refresh cycle now, e.g. to warm up a long-lived
// worker before a burst of calls. Concurrent callers share one refresh.
func (c *Client) RefreshSession(ctx context.Context) (*Credentials, error) {
	return c.auth.refreshCredentials(ctx)
}

// Logout clears the stored credential pair.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// CurrentCustomer returns the signed-in customer's profile.
func (c *Client) CurrentCustomer(ctx context.Context) (*Customer, error) {
	var out Customer
	if err := c.GetTyped(ctx, mePath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile updates the signed-in customer's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]string) (*Customer, error) {
	resp, err := c.Put(ctx, profilePath, fields)
	if err != nil {
		return nil, err
	}
	var out Customer
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventFilter narrows ListEvents results. Zero fields are omitted.
type EventFilter struct {
	Category string
	Search   string
	Featured bool
}

// ListEvents returns the public event listings, optionally filtered.
func (c *Client) ListEvents(ctx context.Context, filter *EventFilter) ([]Event, error) {
	query := url.Values{}
	if filter != nil {
		if filter.Category != "" {
			query.Set("category", filter.Category)
		}
		if filter.Search != "" {
			query.Set("search", filter.Search)
		}
		if filter.Featured {
			query.Set("featured", "true")
		}
	}
	var out struct {
		Results []Event `json:"results"`
	}
	if err := c.GetTyped(ctx, publicEventsPath, query, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetEvent returns one public event with its ticket types.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, []TicketType, error) {
	var out struct {
		Event
		TicketTypes []TicketType `json:"ticket_types"`
	}
	if err := c.GetTyped(ctx, publicEventsPath+eventID+"/", nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.Event, out.TicketTypes, nil
}

// BookTickets books quantity tickets of the given type and returns them.
// Booking is not idempotent, so the pipeline never retries it on 5xx; only
// the auth-refresh re-dispatch applies.
func (c *Client) BookTickets(ctx context.Context, ticketTypeID string, quantity int) ([]Ticket, error) {
	resp, err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   ticketBookPath,
		Body: map[string]interface{}{
			"ticket_type_id": ticketTypeID,
			"quantity":       quantity,
		},
		Retry: &RetryOverride{Attempts: 1},
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Tickets []Ticket `json:"tickets"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Tickets, nil
}

// ListMyTickets returns the signed-in customer's tickets.
func (c *Client) ListMyTickets(ctx context.Context) ([]Ticket, error) {
	var out struct {
		Results []Ticket `json:"results"`
	}
	if err := c.GetTyped(ctx, userTicketsPath, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetTicket returns one of the signed-in customer's tickets.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out Ticket
	if err := c.GetTyped(ctx, userTicketsPath+ticketID+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanNFC submits a scanned NFC card UID for check-in verification. Used by
// the usher app at the gate.
func (c *Client) ScanNFC(ctx context.Context, eventID, cardUID string) (*ScanResult, error) {
	var out ScanResult
	err := c.PostTyped(ctx, checkinNFCPath, map[string]string{
		"event_id": eventID,
		"card_uid": cardUID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCheckin verifies a ticket by its ID or QR payload without marking it
// used.
func (c *Client) VerifyCheckin(ctx context.Context, eventID, ticketID string) (*ScanResult, error) {
	var out ScanResult
	err := c.PostTyped(ctx, checkinVerifyPath, map[string]string{
		"event_id":  eventID,
		"ticket_id": ticketID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
