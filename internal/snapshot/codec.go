// Package snapshot 负责订单行快照的编解码。
//
// 快照在下单时写入 order_details.snapshot，之后菜单如何变化都不影响历史订单。
// 解码是宽松的：缺失或类型不对的字段取默认值，只有整体不是 JSON 对象时才报错，
// 这样一条损坏或旧格式的快照不会拖垮整张订单。
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ErrMalformedSnapshot 快照不是合法的 JSON 对象。
var ErrMalformedSnapshot = errors.New("malformed item snapshot")

// SubItem 下单时选中的子项（加料、尺寸等），编码与解码共用同一结构。
type SubItem struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	GroupName string          `json:"groupName"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Item 一个订单行的完整快照。
type Item struct {
	ID               uint            `json:"id"`
	Name             string          `json:"name"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	OriginalPrice    decimal.Decimal `json:"originalPrice"`
	Note             string          `json:"note"`
	Image            string          `json:"image"`
	SelectedSubItems []SubItem       `json:"selectedSubItems"`
	GroupOrder       []string        `json:"groupOrder"`
}

// LineOriginalTotal 原价行小计 = originalPrice × quantity。
func (it Item) LineOriginalTotal() decimal.Decimal {
	return it.OriginalPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Discounted 实付单价低于原价即视为有折扣。
func (it Item) Discounted() bool {
	return it.Price.LessThan(it.OriginalPrice)
}

// Encode 将订单行编码为快照。缺省值：quantity<=0 记为 1，originalPrice 为 0 时取 price，
// 空列表写成 []。
func Encode(it Item) (datatypes.JSON, error) {
	b, err := json.Marshal(withDefaults(it))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot item %d: %w", it.ID, err)
	}
	return datatypes.JSON(b), nil
}

func withDefaults(it Item) Item {
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	if it.OriginalPrice.IsZero() {
		it.OriginalPrice = it.Price
	}
	subs := make([]SubItem, 0, len(it.SelectedSubItems))
	for _, s := range it.SelectedSubItems {
		if s.Quantity <= 0 {
			s.Quantity = 1
		}
		subs = append(subs, s)
	}
	it.SelectedSubItems = subs
	groups := make([]string, 0, len(it.GroupOrder))
	it.GroupOrder = append(groups, it.GroupOrder...)
	return it
}

// Decode 宽松解码一条快照。
func Decode(blob []byte) (Item, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if raw == nil {
		return Item{}, fmt.Errorf("%w: null", ErrMalformedSnapshot)
	}

	it := Item{
		ID:               readUint(raw, "id"),
		Name:             readString(raw, "name"),
		Quantity:         readQuantity(raw, "quantity", "qty"),
		Price:            readDecimal(raw, "price"),
		Note:             readString(raw, "note", "notes"),
		Image:            readString(raw, "image"),
		SelectedSubItems: readSubItems(raw, "selectedSubItems", "selectedItems"),
		GroupOrder:       readStrings(raw, "groupOrder", "groupNames"),
	}
	if v, ok := field(raw, "originalPrice", "original_price"); ok {
		if d, ok := parseDecimal(v); ok {
			it.OriginalPrice = d
		} else {
			it.OriginalPrice = it.Price
		}
	} else {
		it.OriginalPrice = it.Price
	}
	return it, nil
}

// field 按顺序取第一个存在且非 null 的字段，兼容旧键名。
func field(raw map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		return v, true
	}
	return nil, false
}

func readString(raw map[string]json.RawMessage, keys ...string) string {
	v, ok := field(raw, keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// parseDecimal 同时接受数字和数字字符串。
func parseDecimal(v json.RawMessage) (decimal.Decimal, bool) {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(v); err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func readDecimal(raw map[string]json.RawMessage, keys ...string) decimal.Decimal {
	v, ok := field(raw, keys...)
	if !ok {
		return decimal.Zero
	}
	d, ok := parseDecimal(v)
	if !ok {
		return decimal.Zero
	}
	return d
}

// 超出范围的整数按类型错误处理，不做截断。
var (
	maxID       = decimal.NewFromInt(math.MaxInt64)
	maxQuantity = decimal.NewFromInt(math.MaxInt32)
)

func readUint(raw map[string]json.RawMessage, keys ...string) uint {
	v, ok := field(raw, keys...)
	if !ok {
		return 0
	}
	d, ok := parseDecimal(v)
	if !ok || d.IsNegative() || !d.Equal(d.Truncate(0)) || d.GreaterThan(maxID) {
		return 0
	}
	return uint(d.IntPart())
}

func readQuantity(raw map[string]json.RawMessage, keys ...string) int {
	v, ok := field(raw, keys...)
	if !ok {
		return 1
	}
	d, ok := parseDecimal(v)
	if !ok || !d.IsPositive() || !d.Equal(d.Truncate(0)) || d.GreaterThan(maxQuantity) {
		return 1
	}
	return int(d.IntPart())
}

func readStrings(raw map[string]json.RawMessage, keys ...string) []string {
	out := []string{}
	v, ok := field(raw, keys...)
	if !ok {
		return out
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(v, &elems); err != nil {
		return out
	}
	for _, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func readSubItems(raw map[string]json.RawMessage, keys ...string) []SubItem {
	out := []SubItem{}
	v, ok := field(raw, keys...)
	if !ok {
		return out
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(v, &elems); err != nil {
		return out
	}
	for _, e := range elems {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(e, &m); err != nil || m == nil {
			continue
		}
		out = append(out, SubItem{
			ID:        readUint(m, "id"),
			Name:      readString(m, "name"),
			GroupName: readString(m, "groupName", "group"),
			Type:      readString(m, "type"),
			Price:     readDecimal(m, "price"),
			Quantity:  readQuantity(m, "quantity", "qty"),
		})
	}
	return out
}
