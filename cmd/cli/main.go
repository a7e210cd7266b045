package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/andrsadr/koravi/internal/clientlist"
	"github.com/andrsadr/koravi/internal/domain"
)

// stdin feeds live search
var stdin io.Reader = os.Stdin

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "clients":
		if err := handleClients(newAPIClient(getAPIURL()), os.Stdout, args); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			os.Exit(1)
		}
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleClients(api *apiClient, out io.Writer, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: koravi clients <list|get|create|update|delete|search|stats>")
		return nil
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		return listClients(api, out, args[1:])
	case "get":
		return getClient(api, out, args[1:])
	case "create":
		return createClient(api, out, args[1:])
	case "update":
		return updateClient(api, out, args[1:])
	case "delete":
		return deleteClient(api, out, args[1:])
	case "search":
		return searchClients(api, out, args[1:])
	case "stats":
		return clientStats(api, out)
	default:
		return fmt.Errorf("unknown clients command: %s", subCmd)
	}
}

func listClients(api *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	search := fs.String("search", "", "free-text search")
	status := fs.String("status", "", "active, inactive or archived")
	labels := fs.String("labels", "", "comma separated labels, any match")
	limit := fs.Int("limit", 0, "maximum rows")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	setIf(q, "search", *search)
	setIf(q, "status", *status)
	setIf(q, "labels", *labels)
	if *limit > 0 {
		q.Set("limit", strconv.Itoa(*limit))
	}
	if *offset > 0 {
		q.Set("offset", strconv.Itoa(*offset))
	}

	var clients []domain.Client
	if err := api.do("GET", "/clients?"+q.Encode(), nil, &clients); err != nil {
		return err
	}
	printClients(out, clients)
	return nil
}

func getClient(api *apiClient, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: koravi clients get <client-id>")
	}
	var c domain.Client
	if err := api.do("GET", "/clients/"+url.PathEscape(args[0]), nil, &c); err != nil {
		return err
	}
	printClient(out, &c)
	return nil
}

func createClient(api *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email")
	phone := fs.String("phone", "", "phone")
	status := fs.String("status", "", "active, inactive or archived")
	labels := fs.String("labels", "", "comma separated labels")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *first == "" || *last == "" {
		return fmt.Errorf("-first and -last are required")
	}

	req := domain.NewClient{
		FirstName: *first,
		LastName:  *last,
		Email:     optional(*email),
		Phone:     optional(*phone),
		Status:    domain.Status(*status),
		Labels:    splitLabels(*labels),
		Notes:     optional(*notes),
	}

	var c domain.Client
	if err := api.do("POST", "/clients", req, &c); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Client created: %s (%s)\n", c.FullName(), c.ID)
	return nil
}

func updateClient(api *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email, empty clears it")
	phone := fs.String("phone", "", "phone, empty clears it")
	status := fs.String("status", "", "active, inactive or archived")
	labels := fs.String("labels", "", "comma separated labels, replaces all")
	notes := fs.String("notes", "", "notes, empty clears them")
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: koravi clients update <client-id> [flags]")
	}
	id := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	// only flags given on the command line are sent; an empty optional
	// field is sent as null so the server clears it
	fields := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first":
			fields["first_name"] = *first
		case "last":
			fields["last_name"] = *last
		case "email":
			fields["email"] = optional(*email)
		case "phone":
			fields["phone"] = optional(*phone)
		case "status":
			fields["status"] = *status
		case "labels":
			fields["labels"] = splitLabels(*labels)
		case "notes":
			fields["notes"] = optional(*notes)
		}
	})
	if len(fields) == 0 {
		return fmt.Errorf("nothing to update")
	}

	var c domain.Client
	if err := api.do("PATCH", "/clients/"+url.PathEscape(id), fields, &c); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Client updated: %s (%s)\n", c.FullName(), c.ID)
	return nil
}

func deleteClient(api *apiClient, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: koravi clients delete <client-id>")
	}
	if err := api.do("DELETE", "/clients/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Client deleted: %s\n", args[0])
	return nil
}

func searchClients(api *apiClient, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "maximum rows")
	live := fs.Bool("live", false, "read queries line by line from stdin and search as you type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *live {
		return liveSearch(api, out, stdin, *limit)
	}

	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("usage: koravi clients search [-limit n] [-live] <query>")
	}
	clients, err := api.search(query, *limit)
	if err != nil {
		return err
	}
	printClients(out, values(clients))
	return nil
}

// liveSearch treats every input line as the current contents of a search
// box. Searches are debounced and answers to superseded queries are
// dropped; at end of input the last query is answered if it has not been.
func liveSearch(api *apiClient, out io.Writer, in io.Reader, limit int) error {
	var mu sync.Mutex
	show := func(query string, clients []*domain.Client, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(out, "✗ %q: %v\n", query, err)
			return
		}
		fmt.Fprintf(out, "%q: %d result(s)\n", query, len(clients))
		printClients(out, values(clients))
	}

	ctx := context.Background()
	ls := clientlist.NewLiveSearch(apiSearcher{api}, clientlist.DefaultDebounce, limit, func(r clientlist.Result) {
		show(r.Query, r.Clients, r.Err)
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer ls.Close()

	var last string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		last = strings.TrimSpace(scanner.Text())
		ls.Input(ctx, last)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// a short query cancels the pending search and supersedes any in flight
	ls.Input(ctx, "")
	if len([]rune(last)) >= clientlist.MinQueryLength && ls.Latest().Query != last {
		clients, err := api.search(last, limit)
		show(last, clients, err)
	}
	return nil
}

type apiSearcher struct{ api *apiClient }

func (s apiSearcher) Search(_ context.Context, query string, limit int) ([]*domain.Client, error) {
	return s.api.search(query, limit)
}

func (a *apiClient) search(query string, limit int) ([]*domain.Client, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var clients []*domain.Client
	if err := a.do("GET", "/clients/search?"+q.Encode(), nil, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

func clientStats(api *apiClient, out io.Writer) error {
	var st domain.Stats
	if err := api.do("GET", "/clients/stats", nil, &st); err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOTAL\tACTIVE\tINACTIVE\tARCHIVED")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", st.Total, st.Active, st.Inactive, st.Archived)
	return w.Flush()
}

func printClients(out io.Writer, clients []domain.Client) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tEMAIL\tLABELS\tVISITS")
	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			c.ID, c.FullName(), c.Status, deref(c.Email), strings.Join(c.Labels, ","), c.TotalVisits)
	}
	w.Flush()
}

func printClient(out io.Writer, c *domain.Client) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", c.ID)
	fmt.Fprintf(w, "Name\t%s\n", c.FullName())
	fmt.Fprintf(w, "Status\t%s\n", c.Status)
	fmt.Fprintf(w, "Email\t%s\n", deref(c.Email))
	fmt.Fprintf(w, "Phone\t%s\n", deref(c.Phone))
	fmt.Fprintf(w, "Labels\t%s\n", strings.Join(c.Labels, ", "))
	fmt.Fprintf(w, "Visits\t%d\n", c.TotalVisits)
	fmt.Fprintf(w, "Lifetime value\t%.2f\n", c.LifetimeValue)
	fmt.Fprintf(w, "Updated\t%s\n", c.UpdatedAt.Format("2006-01-02 15:04"))
	w.Flush()
}

func values(clients []*domain.Client) []domain.Client {
	out := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		out = append(out, *c)
	}
	return out
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func splitLabels(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getAPIURL() string {
	if u := os.Getenv("KORAVI_API"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080/api"
}

func printUsage() {
	fmt.Print(`Koravi CLI

Usage:
  koravi <command> [options]

Commands:
  clients    Client operations (list, get, create, update, delete, search, stats)
  help       Show this help message

Environment Variables:
  KORAVI_API    API endpoint (default: http://localhost:8080/api)

Examples:
  koravi clients create -first Jane -last Smith -email jane@example.com -labels VIP
  koravi clients list -status active -limit 20
  koravi clients update <client-id> -first Janet -email ""
  koravi clients search -limit 5 jane
  koravi clients search -live
  koravi clients stats
`)
}
