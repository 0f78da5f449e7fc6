package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Read-only overview for the operator console
func (h *Handlers) StatsOverview(c *gin.Context) {
	var stats struct {
		TotalCustomers   int     `json:"total_customers"`
		Subscribers      int     `json:"subscribers"`
		LifetimeMembers  int     `json:"lifetime_members"`
		CreditsHeld      int     `json:"credits_held"`
		ActiveTakeovers  int     `json:"active_takeovers"`
		PaidCustomerRate float64 `json:"paid_customer_rate"`
	}

	ctx := c.Request.Context()
	users, err := h.operator.Customers(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	takeovers, err := h.operator.ActiveTakeovers(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	paid := 0
	for _, u := range users {
		stats.CreditsHeld += u.Credits
		if u.Lifetime {
			stats.LifetimeMembers++
		}
		if u.Subscription != nil && u.Subscription.Status.Unlocks() {
			stats.Subscribers++
		}
		if u.HasPaidHistory() || u.Lifetime {
			paid++
		}
	}
	stats.TotalCustomers = len(users)
	stats.ActiveTakeovers = len(takeovers)

	if stats.TotalCustomers > 0 {
		stats.PaidCustomerRate = (float64(paid) / float64(stats.TotalCustomers)) * 100
	}

	c.JSON(http.StatusOK, stats)
}
