package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status      int
	OrderStatus string
	Err         error
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	sessionID := flag.String("session", "", "checkout session id; empty = create a new order and session first")
	total := flag.Int("n", 100, "number of callbacks")
	concurrency := flag.Int("c", 20, "max concurrency")
	mode := flag.String("mode", "mixed", "callback mix: mixed | success | cancel")
	flag.Parse()

	client := &http.Client{Timeout: 15 * time.Second}

	orderID := uint(0)
	if *sessionID == "" {
		// 先下一个自取订单并创建结账会话，再对同一会话并发回调
		id, sid, err := prepareSession(client, *baseURL)
		if err != nil {
			panic(fmt.Sprintf("prepare session failed: %v", err))
		}
		orderID, *sessionID = id, sid
		fmt.Printf("created order=%d session=%s\n", orderID, *sessionID)
	}

	fmt.Printf("start callback test: session=%s n=%d concurrency=%d mode=%s\n", *sessionID, *total, *concurrency, *mode)
	results := runCallbacks(client, *baseURL, *sessionID, *mode, *total, *concurrency)
	printSummary("callbacks", results)

	if orderID != 0 {
		st, err := getOrderStatus(client, *baseURL, orderID)
		if err != nil {
			fmt.Println("final status check err:", err)
			return
		}
		fmt.Println("final order status:", st)
	}
}

func runCallbacks(client *http.Client, baseURL, sessionID, mode string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			success := mode == "success" || (mode == "mixed" && idx%2 == 0)
			results[idx] = callbackOnce(client, baseURL, sessionID, success)
		}(i)
	}

	wg.Wait()
	return results
}

func callbackOnce(client *http.Client, baseURL, sessionID string, success bool) Result {
	var req *http.Request
	if success {
		req, _ = http.NewRequest(http.MethodGet, baseURL+"/api/payment/success?session_id="+url.QueryEscape(sessionID), nil)
	} else {
		b, _ := json.Marshal(map[string]string{"sessionId": sessionID})
		req, _ = http.NewRequest(http.MethodPost, baseURL+"/api/payment/cancel", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	res := Result{Status: resp.StatusCode}
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Code == 0 {
		var view struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(env.Data, &view)
		res.OrderStatus = view.Status
	}
	return res
}

// printSummary 聚合输出状态码与返回的订单状态分布。
// 回调正确串行化时，所有 200 响应里的订单状态应当一致。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	statuses := map[string]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
		if r.OrderStatus != "" {
			statuses[r.OrderStatus]++
		}
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 429, 500, 502} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
	fmt.Printf("[%s] order status summary:\n", name)
	for st, n := range statuses {
		fmt.Printf("  %s -> %d\n", st, n)
	}
	if len(statuses) > 1 {
		fmt.Println("  WARNING: responses disagree on order status")
	}
}

func prepareSession(client *http.Client, baseURL string) (uint, string, error) {
	order := map[string]any{
		"items": []map[string]any{
			{"id": 1, "name": "Load test pizza", "quantity": 1, "price": "9.90"},
		},
		"customerInfo": map[string]any{"name": "Load Test", "email": fmt.Sprintf("loadtest+%d@example.com", time.Now().UnixNano())},
		"orderMethod":  "pickup",
		"total":        "9.90",
	}
	var created struct {
		OrderID uint `json:"orderId"`
	}
	if err := doPOST(client, baseURL+"/api/orders", order, nil, &created); err != nil {
		return 0, "", fmt.Errorf("create order: %w", err)
	}

	var sess struct {
		SessionID string `json:"sessionId"`
	}
	if err := doPOST(client, baseURL+"/api/checkout/session", map[string]any{"orderId": created.OrderID}, map[string]string{
		"Idempotency-Key": fmt.Sprintf("loadtest-%d", created.OrderID),
	}, &sess); err != nil {
		return 0, "", fmt.Errorf("create checkout session: %w", err)
	}
	return created.OrderID, sess.SessionID, nil
}

// doPOST 发送 POST 请求（支持附加请求头），out 非 nil 时解析 data 字段。
func doPOST(client *http.Client, url string, body any, headers map[string]string, out any) error {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(http.MethodPost, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// getOrderStatus 压测结束后读取订单最终状态。
func getOrderStatus(client *http.Client, baseURL string, orderID uint) (string, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/orders/%d", baseURL, orderID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", err
	}
	return out.Data.Status, nil
}
