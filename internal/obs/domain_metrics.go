package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain counters are usable before registration so services and their tests
// never need a registry; MustRegisterDomainMetrics exposes them for scraping.
var (
	domainOnce sync.Once

	// CouponValidationTotal counts coupon validation outcomes by failure reason.
	CouponValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "coupon_validation_total",
		Help:      "Count of coupon validation outcomes.",
	}, []string{"result"})
	// CouponRedeemTotal counts redemption attempts by result.
	CouponRedeemTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "coupon_redeem_total",
		Help:      "Count of coupon redemption attempts by result.",
	}, []string{"result"})
	// CheckoutTotal counts checkout attempts and their outcome.
	CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "checkout_total",
		Help:      "Count of checkout attempts by outcome.",
	}, []string{"result"})
	// OrderStatusChangeTotal counts administrative status changes by target status.
	OrderStatusChangeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "order_status_change_total",
		Help:      "Count of administrative order status changes.",
	}, []string{"status"})
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "payment_webhook_total",
		Help:      "Count of processed payment webhooks by outcome.",
	}, []string{"provider", "result"})
)

// MustRegisterDomainMetrics registers the domain collectors exactly once.
func MustRegisterDomainMetrics(reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{
			CouponValidationTotal,
			CouponRedeemTotal,
			CheckoutTotal,
			OrderStatusChangeTotal,
			PaymentWebhookTotal,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
					continue
				}
				panic(fmt.Errorf("register domain metric: %w", err))
			}
		}
	})
}
