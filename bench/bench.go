// Package bench drives the order workflow against a running API and records
// per-step latencies.
package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ahmadzakiakmal/medichain/client"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
)

// RequestResult is one timed step of a workflow iteration
type RequestResult struct {
	Name     string
	Method   string
	Endpoint string
	Latency  time.Duration
}

type Options struct {
	Iterations int
	// Pause between steps
	Pause  time.Duration
	Logger cmtlog.Logger
}

var header = []string{"Iteration", "Step", "Method", "Endpoint", "Latency_ms"}

// Run executes the workflow opts.Iterations times and writes a CSV row per step to out
func Run(api *client.HTTPClient, opts Options, out io.Writer) error {
	if opts.Iterations <= 0 {
		opts.Iterations = 1
	}
	if opts.Logger == nil {
		opts.Logger = cmtlog.NewNopLogger()
	}

	writer := csv.NewWriter(out)
	defer writer.Flush()
	if err := writer.Write(header); err != nil {
		return err
	}

	for i := 0; i < opts.Iterations; i++ {
		opts.Logger.Info("Running workflow", "iteration", i+1, "of", opts.Iterations)
		results, err := runWorkflow(api, opts.Pause)
		for _, result := range results {
			record := []string{
				strconv.Itoa(i + 1),
				result.Name,
				result.Method,
				result.Endpoint,
				strconv.FormatInt(result.Latency.Milliseconds(), 10),
			}
			if werr := writer.Write(record); werr != nil {
				return werr
			}
		}
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

type step struct {
	name, method, endpoint string
}

// runWorkflow registers two hospitals, lists stock at one, and has the other
// find, order and settle it
func runWorkflow(api *client.HTTPClient, pause time.Duration) ([]RequestResult, error) {
	var results []RequestResult
	totalStart := time.Now()
	tag := uuid.NewString()[:8]

	timed := func(s step, fn func() error) error {
		time.Sleep(pause)
		start := time.Now()
		err := fn()
		results = append(results, RequestResult{Name: s.name, Method: s.method, Endpoint: s.endpoint, Latency: time.Since(start)})
		return err
	}

	var seller, buyer *client.Session
	err := timed(step{"Register Seller", "POST", "/api/auth/register"}, func() (err error) {
		seller, err = api.Register(client.Registration{
			Name: "Bench Seller " + tag, Email: "seller-" + tag + "@bench.local", Password: "bench-password",
			WalletAddress: "0xseller" + tag, Latitude: 28.5672, Longitude: 77.2100,
		})
		return err
	})
	if err != nil {
		return results, err
	}

	err = timed(step{"Register Buyer", "POST", "/api/auth/register"}, func() (err error) {
		buyer, err = api.Register(client.Registration{
			Name: "Bench Buyer " + tag, Email: "buyer-" + tag + "@bench.local", Password: "bench-password",
			WalletAddress: "0xbuyer" + tag, Latitude: 28.5687, Longitude: 77.2060,
		})
		return err
	})
	if err != nil {
		return results, err
	}

	asSeller := api.WithToken(seller.Token)
	asBuyer := api.WithToken(buyer.Token)
	medicine := "Benchmarkol " + tag

	err = timed(step{"Create Medicine", "POST", "/api/medicines"}, func() error {
		_, err := asSeller.CreateMedicine(client.NewMedicine{
			Name: medicine, Quantity: 100, Expiry: time.Now().AddDate(1, 0, 0).Format("2006-01-02"),
		})
		return err
	})
	if err != nil {
		return results, err
	}

	err = timed(step{"Search Medicine", "POST", "/api/medicines/search"}, func() error {
		matches, err := asBuyer.SearchMedicines(client.Search{Name: medicine, Quantity: 10})
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("no stock found for %q", medicine)
		}
		return nil
	})
	if err != nil {
		return results, err
	}

	var orderID string
	err = timed(step{"Create Order", "POST", "/api/orders"}, func() error {
		order, err := asBuyer.CreateOrder(client.NewOrder{MedicineName: medicine, Quantity: 10, ToHospitalID: seller.ID})
		if err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		return results, err
	}

	err = timed(step{"Complete Order", "PUT", "/api/orders/:id/complete"}, func() error {
		_, err := asSeller.CompleteOrder(orderID, "0xbench"+tag)
		return err
	})
	if err != nil {
		return results, err
	}

	results = append(results, RequestResult{
		Name:     "Complete Workflow",
		Method:   "WORKFLOW",
		Endpoint: "complete-workflow",
		Latency:  time.Since(totalStart),
	})
	return results, nil
}
