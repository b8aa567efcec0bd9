package client

// rawToken mirrors a listing entry as sent by the API. Every field may be
// missing or null.
type rawToken struct {
	ID            *int64   `json:"id"`
	Name          *string  `json:"name"`
	Status        *string  `json:"status"`
	TokenAddress  *string  `json:"tokenAddress"`
	PreToken      *string  `json:"preToken"`
	Description   *string  `json:"description"`
	LPAddress     *string  `json:"lpAddress"`
	PreTokenPair  *string  `json:"preTokenPair"`
	Symbol        *string  `json:"symbol"`
	HolderCount   *int64   `json:"holderCount"`
	MCapInVirtual *float64 `json:"mcapInVirtual"`
	Socials       *struct {
		VerifiedLinks *struct {
			Twitter  *string `json:"TWITTER"`
			Telegram *string `json:"TELEGRAM"`
		} `json:"VERIFIED_LINKS"`
	} `json:"socials"`
	Image *struct {
		ID  *int64  `json:"id"`
		URL *string `json:"url"`
	} `json:"image"`
	Chain *string `json:"chain"`
}

// toToken applies the documented defaults. Token and pair addresses fall
// back to their pre-bonding counterparts.
func (r rawToken) toToken() Token {
	t := Token{
		ID:            deref(r.ID),
		Name:          deref(r.Name),
		Status:        deref(r.Status),
		TokenAddress:  firstNonEmpty(r.TokenAddress, r.PreToken),
		Description:   deref(r.Description),
		LPAddress:     firstNonEmpty(r.LPAddress, r.PreTokenPair),
		Symbol:        deref(r.Symbol),
		HolderCount:   deref(r.HolderCount),
		MCapInVirtual: deref(r.MCapInVirtual),
		Chain:         deref(r.Chain),
	}
	if r.Socials != nil && r.Socials.VerifiedLinks != nil {
		t.Socials.Twitter = deref(r.Socials.VerifiedLinks.Twitter)
		t.Socials.Telegram = deref(r.Socials.VerifiedLinks.Telegram)
	}
	if r.Image != nil {
		t.Image.ID = deref(r.Image.ID)
		t.Image.URL = deref(r.Image.URL)
	}
	return t
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
