package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"ats-dashboard-feed/internal/config"
	grpchandlers "ats-dashboard-feed/internal/grpc"
	"ats-dashboard-feed/pkg/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const requestTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	serverAddr := cfg.GRPC.Addr

	fmt.Printf("Attempting to connect to server at %s...\n", serverAddr)

	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to create client for %s: %v", serverAddr, err)
	}
	defer conn.Close()

	client := grpchandlers.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	_, err = client.GetStats(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to reach server at %s: %v\nMake sure the server is running (go run ./cmd/server)", serverAddr, err)
	}

	fmt.Println("ATS Dashboard Feed CLI")
	fmt.Println("Connected to server at", serverAddr)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		printHelp()
		fmt.Print("\nEnter command: ")

		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "1", "watch":
			var symbols []string
			if len(parts) > 1 {
				symbols = splitSymbols(strings.Join(parts[1:], " "))
			}
			watchSnapshots(client, symbols)

		case "2", "get":
			if len(parts) < 2 {
				fmt.Println("Usage: get <symbol> (e.g., get NSE_INDEX|Nifty 50)")
				continue
			}
			getSnapshot(client, strings.Join(parts[1:], " "))

		case "3", "latest":
			getLatest(client)

		case "4", "symbols":
			listSymbols(client)

		case "5", "stats":
			showStats(client)

		case "6", "create-alert":
			createAlert(client, scanner)

		case "7", "list-alerts":
			listAlerts(client)

		case "8", "enable-alert", "disable-alert":
			if len(parts) < 2 {
				fmt.Println("Usage: enable-alert <id> | disable-alert <id>")
				continue
			}
			setAlertEnabled(client, parts[1], parts[0] != "disable-alert")

		case "9", "delete-alert":
			if len(parts) < 2 {
				fmt.Println("Usage: delete-alert <id>")
				continue
			}
			deleteAlert(client, parts[1])

		case "10", "watch-alerts":
			watchAlerts(client)

		case "11", "help":
			continue

		case "12", "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
		}

		fmt.Println()
	}
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("1.  watch [symbols]       - Watch published snapshots (e.g., watch NSE_INDEX|Nifty 50,NSE_INDEX|Nifty Bank)")
	fmt.Println("2.  get <symbol>          - Show the latest snapshot for a symbol")
	fmt.Println("3.  latest                - Show the newest snapshot across all symbols")
	fmt.Println("4.  symbols               - List buffered symbols")
	fmt.Println("5.  stats                 - Show feed and broker stats")
	fmt.Println("6.  create-alert          - Create a new dashboard alert")
	fmt.Println("7.  list-alerts           - List all alerts")
	fmt.Println("8.  enable-alert <id>     - Enable (or disable-alert <id>) an alert")
	fmt.Println("9.  delete-alert <id>     - Delete an alert")
	fmt.Println("10. watch-alerts          - Watch for alert triggers")
	fmt.Println("11. help                  - Show this help")
	fmt.Println("12. quit                  - Exit the application")
}

func splitSymbols(arg string) []string {
	var symbols []string
	for _, symbol := range strings.Split(arg, ",") {
		if symbol = strings.TrimSpace(symbol); symbol != "" {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func watchSnapshots(client *grpchandlers.Client, symbols []string) {
	if len(symbols) == 0 {
		fmt.Println("Watching all symbols (Press Ctrl+C to stop)")
	} else {
		fmt.Printf("Watching snapshots for: %v (Press Ctrl+C to stop)\n", symbols)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := client.WatchSnapshots(ctx, symbols, func(snap *models.Snapshot) error {
		printSnapshotLine(snap)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("Error receiving snapshots: %v", err)
	}
}

func printSnapshotLine(snap *models.Snapshot) {
	timestamp := time.UnixMilli(snap.Timestamp).Format("15:04:05")

	view, err := snap.Dashboard()
	if err != nil {
		fmt.Printf("[%s] %s: %s\n", timestamp, snap.Symbol, snap.Payload)
		return
	}
	fmt.Printf("[%s] %s: spot %.2f  fut %.2f  basis %.2f  pcr %.2f  %s  open P&L %.2f\n",
		timestamp, snap.Symbol, view.Spot, view.Future, view.Basis, view.PCR, view.AuctionState, view.OpenPnL())
}

func printSnapshot(snap *models.Snapshot) {
	printSnapshotLine(snap)

	view, err := snap.Dashboard()
	if err != nil {
		return
	}
	if view.OHLC != nil {
		fmt.Printf("   OHLC: %.2f / %.2f / %.2f / %.2f\n", view.OHLC.Open, view.OHLC.High, view.OHLC.Low, view.OHLC.Close)
	}
	if view.AuctionProfile != nil {
		fmt.Printf("   Value area: VAL %.2f  POC %.2f  VAH %.2f\n",
			view.AuctionProfile.VAL, view.AuctionProfile.POC, view.AuctionProfile.VAH)
	}
	for _, sig := range view.ScalpSignals {
		fmt.Printf("   Signal: %s %s entry %.2f sl %.2f tp %.2f\n",
			sig.Gate, sig.Status, sig.Entry, sig.StopLoss, sig.TakeProfit)
	}
	for _, trade := range view.ActiveTrades {
		fmt.Printf("   Active: %s %d @ %.2f ltp %.2f P&L %.2f\n", trade.Side, trade.Qty, trade.Entry, trade.LTP, trade.PnL)
	}
	if len(view.ClosedTrades) > 0 {
		fmt.Printf("   Closed trades: %d  realized P&L %.2f\n", len(view.ClosedTrades), view.RealizedPnL())
	}
}

func getSnapshot(client *grpchandlers.Client, symbol string) {
	ctx, cancel := requestContext()
	defer cancel()

	snap, err := client.GetSnapshot(ctx, symbol)
	if err != nil {
		log.Printf("Error getting snapshot: %v", err)
		return
	}
	printSnapshot(snap)
}

func getLatest(client *grpchandlers.Client) {
	ctx, cancel := requestContext()
	defer cancel()

	snap, err := client.GetLatest(ctx)
	if err != nil {
		log.Printf("Error getting latest snapshot: %v", err)
		return
	}
	printSnapshot(snap)
}

func listSymbols(client *grpchandlers.Client) {
	ctx, cancel := requestContext()
	defer cancel()

	symbols, err := client.ListSymbols(ctx)
	if err != nil {
		log.Printf("Error listing symbols: %v", err)
		return
	}
	if len(symbols) == 0 {
		fmt.Println("No snapshots buffered yet")
		return
	}
	for _, symbol := range symbols {
		fmt.Println(" -", symbol)
	}
}

func showStats(client *grpchandlers.Client) {
	ctx, cancel := requestContext()
	defer cancel()

	stats, err := client.GetStats(ctx)
	if err != nil {
		log.Printf("Error getting stats: %v", err)
		return
	}

	sections := make([]string, 0, len(stats))
	for name := range stats {
		sections = append(sections, name)
	}
	sort.Strings(sections)

	for _, name := range sections {
		fmt.Printf("%s: %v\n", name, stats[name])
	}
}

func createAlert(client *grpchandlers.Client, scanner *bufio.Scanner) {
	fmt.Println("Creating a new alert")

	fmt.Print("Enter symbol (e.g., NSE_INDEX|Nifty 50): ")
	if !scanner.Scan() {
		return
	}
	symbol := strings.TrimSpace(scanner.Text())

	fmt.Printf("Enter field (%s, %s, %s, %s, %s) [spot]: ",
		models.FieldSpot, models.FieldFuture, models.FieldBasis, models.FieldPCR, models.FieldWeightedDelta)
	if !scanner.Scan() {
		return
	}
	field := strings.TrimSpace(scanner.Text())

	fmt.Print("Enter comparator (>, >=, <, <=, ==): ")
	if !scanner.Scan() {
		return
	}
	comparator := models.ParseComparator(scanner.Text())
	if comparator == models.ComparatorUnspecified {
		fmt.Println("Invalid comparator")
		return
	}

	fmt.Print("Enter threshold: ")
	if !scanner.Scan() {
		return
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
	if err != nil {
		fmt.Printf("Invalid threshold: %v\n", err)
		return
	}

	fmt.Print("Enter note (optional): ")
	if !scanner.Scan() {
		return
	}
	note := strings.TrimSpace(scanner.Text())

	ctx, cancel := requestContext()
	defer cancel()

	alert, err := client.CreateAlert(ctx, symbol, field, comparator, threshold, note)
	if err != nil {
		log.Printf("Error creating alert: %v", err)
		return
	}

	fmt.Printf("Alert created successfully!\n")
	printAlert(alert)
}

func printAlert(alert *models.Alert) {
	fmt.Printf("   ID: %s\n", alert.ID)
	fmt.Printf("   Rule: %s %s %s %.2f\n", alert.Symbol, alert.Field, alert.Comparator, alert.Threshold)
	if alert.Note != "" {
		fmt.Printf("   Note: %s\n", alert.Note)
	}
	if alert.LastTrigger != nil {
		fmt.Printf("   Last triggered: %s\n", alert.LastTrigger.Local().Format("2006-01-02 15:04:05"))
	}
}

func listAlerts(client *grpchandlers.Client) {
	fmt.Println("Listing all alerts")

	ctx, cancel := requestContext()
	defer cancel()

	list, err := client.ListAlerts(ctx)
	if err != nil {
		log.Printf("Error getting alerts: %v", err)
		return
	}

	if len(list) == 0 {
		fmt.Println("No alerts found")
		return
	}

	fmt.Printf("Found %d alert(s):\n\n", len(list))

	for i, alert := range list {
		status := "Enabled"
		if !alert.Enabled {
			status = "Disabled"
		}
		fmt.Printf("%d. %s\n", i+1, status)
		printAlert(alert)
		fmt.Println()
	}
}

func setAlertEnabled(client *grpchandlers.Client, alertID string, enabled bool) {
	ctx, cancel := requestContext()
	defer cancel()

	alert, err := client.SetAlertEnabled(ctx, alertID, enabled)
	if err != nil {
		log.Printf("Error updating alert: %v", err)
		return
	}
	fmt.Printf("Alert %s enabled=%v\n", alert.ID, alert.Enabled)
}

func deleteAlert(client *grpchandlers.Client, alertID string) {
	fmt.Printf("Deleting alert: %s\n", alertID)

	ctx, cancel := requestContext()
	defer cancel()

	if err := client.DeleteAlert(ctx, alertID); err != nil {
		log.Printf("Error deleting alert: %v", err)
		return
	}

	fmt.Println("Alert deleted successfully!")
}

func watchAlerts(client *grpchandlers.Client) {
	fmt.Println("Watching for alert triggers (Press Ctrl+C to stop)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := client.WatchAlerts(ctx, func(trigger *models.AlertTrigger) error {
		alert := trigger.Alert

		fmt.Printf("\nALERT TRIGGERED! [%s]\n", trigger.Timestamp.Local().Format("15:04:05"))
		fmt.Printf("Symbol: %s\n", alert.Symbol)
		fmt.Printf("Rule: %s %s %.2f\n", alert.Field, alert.Comparator, alert.Threshold)
		fmt.Printf("Triggered at: %.2f (frame %s)\n", trigger.Value,
			time.UnixMilli(trigger.SnapshotTime).Format("15:04:05.000"))
		if alert.Note != "" {
			fmt.Printf("Note: %s\n", alert.Note)
		}
		fmt.Println(strings.Repeat("-", 40))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("Error receiving alert trigger: %v", err)
	}
}
