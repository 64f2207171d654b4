package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joshp123/catgenie/plugins/catgenie"
)

var httpClient = &http.Client{Timeout: 45 * time.Second}

type apiClient struct {
	base string
}

func newAPIClient() apiClient {
	return apiClient{base: "http://" + resolveHTTPAddr()}
}

func (c apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c apiClient) devices() ([]catgenie.DeviceView, error) {
	var views []catgenie.DeviceView
	err := c.do(http.MethodGet, "/api/catgenie/devices", nil, &views)
	return views, err
}

func (c apiClient) resolveDevice(input string) (string, error) {
	views, err := c.devices()
	if err != nil {
		return "", err
	}
	options := make(map[string]string, len(views))
	for _, view := range views {
		options[view.Device.DisplayName()] = view.Device.ManufacturerID
	}
	return resolveNamedID("device", input, options)
}

func devicesCmd(args []string) {
	flags := flag.NewFlagSet("devices", flag.ExitOnError)
	asJSON := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args)

	views, err := newAPIClient().devices()
	if err != nil {
		fatal("list devices", err)
	}
	out := newOutput(*asJSON)
	if out.json {
		out.printJSON(views)
		return
	}

	rows := [][]string{{"ID", "NAME", "STATE", "PROGRESS", "AVAILABLE"}}
	for _, view := range views {
		state, progress := "-", "-"
		if view.Status != nil {
			state = strconv.Itoa(view.Status.State)
			progress = strconv.Itoa(view.Status.Progress) + "%"
		}
		rows = append(rows, []string{view.Device.ManufacturerID, view.Device.DisplayName(), state, progress, strconv.FormatBool(view.Available)})
	}
	out.table(rows)
}

func statusCmd(args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	asJSON := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args)
	if flags.NArg() < 1 {
		fatal("status", fmt.Errorf("missing device"))
	}

	api := newAPIClient()
	id, err := api.resolveDevice(flags.Arg(0))
	if err != nil {
		fatal("resolve device", err)
	}
	var view catgenie.DeviceView
	if err := api.do(http.MethodGet, "/api/catgenie/devices/"+id, nil, &view); err != nil {
		fatal("device status", err)
	}

	out := newOutput(*asJSON)
	if out.json {
		out.printJSON(view)
		return
	}
	fmt.Fprintf(out.out, "device: %s (%s)\n", view.Device.DisplayName(), view.Device.ManufacturerID)
	fmt.Fprintf(out.out, "available: %t\n", view.Available)
	if view.FetchedAt != nil {
		fmt.Fprintf(out.out, "fetched: %s\n", view.FetchedAt.Local().Format(time.RFC3339))
	}
	keys := make([]string, 0, len(view.States))
	for key := range view.States {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, view.States[key]})
	}
	out.table(rows)
}

func operateCmd(args []string) {
	if len(args) < 2 {
		fatal("operate", fmt.Errorf("usage: operate <device> <on|off|resume|full_clean>"))
	}
	op, err := catgenie.ParseOperation(args[1])
	if err != nil {
		fatal("operate", err)
	}

	api := newAPIClient()
	id, err := api.resolveDevice(args[0])
	if err != nil {
		fatal("resolve device", err)
	}
	body := map[string]string{"operation": op.String()}
	if err := api.do(http.MethodPost, "/api/catgenie/devices/"+id+"/operation", body, nil); err != nil {
		fatal("operate", err)
	}
	fmt.Printf("%s: %s sent\n", id, op)
}

func pluginsCmd(args []string) {
	path := "/plugins"
	if len(args) > 0 {
		path += "/" + args[0]
	}
	var out any
	if err := newAPIClient().do(http.MethodGet, path, nil, &out); err != nil {
		fatal("plugins", err)
	}
	newOutput(true).printJSON(out)
}
