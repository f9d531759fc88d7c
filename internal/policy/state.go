package policy

import (
	"github.com/google/uuid"
)

// Clone returns an independent copy of the book.
func (bk *Book) Clone() *Book {
	c := NewBook()
	for id, m := range bk.metadata {
		mc := *m
		mc.Data = append([]byte(nil), m.Data...)
		c.metadata[id] = &mc
	}
	for id, a := range bk.applications {
		c.applications[id] = copyApplication(a)
	}
	for id, p := range bk.policies {
		c.policies[id] = copyPolicy(p)
	}
	for id, list := range bk.claims {
		cl := make([]*Claim, len(list))
		for i, x := range list {
			cl[i] = copyClaim(x)
		}
		c.claims[id] = cl
	}
	for id, list := range bk.payouts {
		pl := make([]*Payout, len(list))
		for i, x := range list {
			pl[i] = copyPayout(x)
		}
		c.payouts[id] = pl
	}
	c.order = append([]uuid.UUID(nil), bk.order...)
	return c
}

// Record is everything the book knows about one application.
type Record struct {
	Metadata    *Metadata    `json:"metadata"`
	Application *Application `json:"application"`
	Policy      *Policy      `json:"policy,omitempty"`
	Claims      []*Claim     `json:"claims,omitempty"`
	Payouts     []*Payout    `json:"payouts,omitempty"`
}

// State is the serializable form of the book, in creation order.
type State struct {
	Records []Record `json:"records"`
}

func (bk *Book) Export() State {
	c := bk.Clone()
	s := State{Records: make([]Record, 0, len(c.order))}
	for _, id := range c.order {
		s.Records = append(s.Records, Record{
			Metadata:    c.metadata[id],
			Application: c.applications[id],
			Policy:      c.policies[id],
			Claims:      c.claims[id],
			Payouts:     c.payouts[id],
		})
	}
	return s
}

// Restore replaces the book contents with s.
func (bk *Book) Restore(s State) {
	fresh := NewBook()
	for _, r := range s.Records {
		id := r.Application.ID
		fresh.order = append(fresh.order, id)
		fresh.applications[id] = r.Application
		fresh.metadata[id] = r.Metadata
		if r.Policy != nil {
			fresh.policies[id] = r.Policy
		}
		if len(r.Claims) > 0 {
			fresh.claims[id] = r.Claims
		}
		if len(r.Payouts) > 0 {
			fresh.payouts[id] = r.Payouts
		}
	}
	*bk = *fresh.Clone()
}
