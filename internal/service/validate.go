package service

import (
	"fmt"
	"strings"

	"restaurant_orders/internal/model"
)

// validateOrder 在任何写操作之前执行；所有问题一次性返回。
func validateOrder(in CreateOrderInput, groups map[uint][]model.SelectionGroup) error {
	var problems []string

	if !in.OrderMethod.Valid() {
		problems = append(problems, fmt.Sprintf("orderMethod must be %q or %q", model.OrderMethodDelivery, model.OrderMethodPickup))
	}
	if in.OrderMethod == model.OrderMethodDelivery {
		ci := in.CustomerInfo
		for _, f := range []struct{ name, value string }{
			{"postcode", ci.Postcode},
			{"street", ci.Street},
			{"house", ci.House},
		} {
			if strings.TrimSpace(f.value) == "" {
				problems = append(problems, fmt.Sprintf("customerInfo.%s is required for delivery orders", f.name))
			}
		}
	}
	// 新订单只能是 Pending，Completed/Cancelled 只能由支付回调推进
	switch {
	case in.Status == "" || in.Status == model.OrderStatusPending:
	case !in.Status.Valid():
		problems = append(problems, fmt.Sprintf("status %q is not a known order status", in.Status))
	default:
		problems = append(problems, fmt.Sprintf("status %q is not allowed on a new order, only %q", in.Status, model.OrderStatusPending))
	}
	if in.Total.IsNegative() {
		problems = append(problems, "total must not be negative")
	}

	if len(in.Items) == 0 {
		problems = append(problems, "items must not be empty")
	}
	for i, it := range in.Items {
		label := itemLabel(i, it)
		if it.Quantity < 0 {
			problems = append(problems, fmt.Sprintf("%s: quantity must not be negative", label))
		}
		if it.Price.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s: price must not be negative", label))
		}
		problems = append(problems, missingRequiredGroups(label, it, groups[it.ID])...)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// missingRequiredGroups 必选分组至少要命中一个选项 id；可选分组不检查。
func missingRequiredGroups(label string, it ItemInput, groups []model.SelectionGroup) []string {
	if len(groups) == 0 {
		return nil
	}
	selected := make(map[uint]struct{}, len(it.SelectedOptionIDs))
	for _, id := range it.SelectedOptionIDs {
		selected[id] = struct{}{}
	}

	var out []string
	for _, g := range groups {
		if !g.Required {
			continue
		}
		hit := false
		for _, o := range g.Options {
			if _, ok := selected[o.ID]; ok {
				hit = true
				break
			}
		}
		if !hit {
			out = append(out, fmt.Sprintf("%s: required option group %q has no selection", label, g.Name))
		}
	}
	return out
}

func itemLabel(i int, it ItemInput) string {
	if it.Name != "" {
		return fmt.Sprintf("items[%d] %q (id %d)", i, it.Name, it.ID)
	}
	return fmt.Sprintf("items[%d] (id %d)", i, it.ID)
}
