package domain

import "sort"

type SellerOrderStats struct {
	TotalOrders    int   `json:"totalOrders"`
	TotalCanceled  int   `json:"totalCanceled"`
	TotalDelivered int   `json:"totalDelivered"`
	TotalRevenue   int64 `json:"totalRevenue"`
}

// ComputeSellerStats aggregates over orders that contain at least one line item
// of sellerID. Revenue only counts that seller's lines of delivered orders, so a
// multi-seller order never attributes another seller's share.
func ComputeSellerStats(sellerID string, orders []Order) SellerOrderStats {
	var stats SellerOrderStats
	for i := range orders {
		o := &orders[i]
		if !o.HasSeller(sellerID) {
			continue
		}
		stats.TotalOrders++
		switch o.Status {
		case OrderStatusCanceled:
			stats.TotalCanceled++
		case OrderStatusDelivered:
			stats.TotalDelivered++
			for _, item := range o.Items {
				if item.SellerID == sellerID {
					stats.TotalRevenue += item.Subtotal()
				}
			}
		}
	}
	return stats
}

type TopItem struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	OrderCount int    `json:"orderCount"`
}

// TopItems ranks sellerID's products by the number of order lines they appear in.
func TopItems(sellerID string, orders []Order, limit int) []TopItem {
	counts := make(map[string]*TopItem)
	for _, o := range orders {
		for _, item := range o.Items {
			if item.SellerID != sellerID {
				continue
			}
			top, ok := counts[item.ProductID]
			if !ok {
				top = &TopItem{ProductID: item.ProductID, Name: item.Name}
				counts[item.ProductID] = top
			}
			top.OrderCount++
		}
	}

	items := make([]TopItem, 0, len(counts))
	for _, top := range counts {
		items = append(items, *top)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].OrderCount != items[j].OrderCount {
			return items[i].OrderCount > items[j].OrderCount
		}
		return items[i].ProductID < items[j].ProductID
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
