package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Plans are listed
	checkEndpoint("GET", "/plans", nil, 200)

	// 3. Create a grant dated 3 years back, so some periods have vested
	grantID := createGrant()
	fmt.Printf("Created Grant ID: %s\n", grantID)

	// 4. Schedule and position
	checkEndpoint("GET", "/grants/"+grantID+"/schedule", nil, 200)
	checkEndpoint("GET", "/grants/"+grantID, nil, 200)

	// 5. Tax preview (no persistence)
	checkEndpoint("POST", "/grants/"+grantID+"/tax-preview", map[string]interface{}{
		"sale_date":  time.Now().Format(time.RFC3339),
		"shares":     10,
		"sale_price": "25.00",
	}, 200)

	// 6. Record a small sale
	saleID := recordSale(grantID, 10, 201)
	fmt.Printf("Recorded Sale ID: %s\n", saleID)

	// 7. Oversell must be rejected with 409
	recordSale(grantID, 100000, 409)

	// 8. Plan change preview then commit
	checkEndpoint("POST", "/grants/"+grantID+"/plan/preview", map[string]interface{}{"plan_id": "monthly-4yr"}, 200)
	checkEndpoint("POST", "/grants/"+grantID+"/plan", map[string]interface{}{"plan_id": "monthly-4yr"}, 200)

	// 9. Portfolio aggregate
	checkEndpoint("GET", "/portfolio", nil, 200)

	// 10. Delete sale, then grant (no confirm needed once sales are gone)
	checkEndpoint("DELETE", "/sales/"+saleID, nil, 200)
	checkEndpoint("DELETE", "/grants/"+grantID, nil, 200)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody
}

func createGrant() string {
	body := checkEndpoint("POST", "/grants", map[string]interface{}{
		"symbol":       "ACME",
		"name":         "New-hire grant",
		"company":      "Acme Corp",
		"grant_date":   time.Now().AddDate(-3, 0, 0).Format(time.RFC3339),
		"total_shares": 1000,
		"total_value":  "10000.00",
		"plan_id":      "quarterly-5yr",
	}, 201)

	var res struct {
		Grant struct {
			ID string `json:"id"`
		} `json:"grant"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.Grant.ID == "" {
		log.Fatalf("could not parse grant id from %s", string(body))
	}
	return res.Grant.ID
}

func recordSale(grantID string, shares int, expectedStatus int) string {
	body := checkEndpoint("POST", "/grants/"+grantID+"/sales", map[string]interface{}{
		"sale_date":       time.Now().Format(time.RFC3339),
		"shares":          shares,
		"price_per_share": "25.00",
		"notes":           "e2e",
	}, expectedStatus)
	if expectedStatus != 201 {
		return ""
	}
	var res struct {
		Sale struct {
			ID string `json:"id"`
		} `json:"sale"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.Sale.ID == "" {
		log.Fatalf("could not parse sale id from %s", string(body))
	}
	return res.Sale.ID
}
