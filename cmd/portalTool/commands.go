// nolint
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
)

func (c *CLI) doRequest(method string, path string, body interface{}) ([]byte, int, error) {
	server, err := c.Data.GetServer()
	if err != nil {
		return nil, 0, err
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(server.Host, "/")+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if server.Token != "" {
		req.Header.Set("Authorization", "Bearer "+server.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, nil
}

func printJson(raw []byte) {
	var buf bytes.Buffer
	if json.Indent(&buf, raw, "", "  ") != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

type AddCmd struct {
	Alias string `arg:"" help:"A unique name to identify the server"`
	Host  string `arg:"" help:"HTTP URL of a portal server"`
	Token string `help:"Bearer token used to access the server"`
}

func (a *AddCmd) Run(c *CLI) error {
	if _, exists := c.Data.Servers[a.Alias]; exists {
		return errors.New("server alias already exists")
	}
	server := PortalServer{
		Alias: a.Alias,
		Host:  normalizeHost(a.Host),
		Token: a.Token,
	}
	c.Data.Servers[a.Alias] = server
	c.Data.Selected = a.Alias
	fmt.Printf("Added and selected server %s (%s)\n", a.Alias, server.Host)
	return c.Data.Save(&c.Globals)
}

type SelectCmd struct {
	Alias string `arg:"" help:"The alias of the server to select"`
}

func (s *SelectCmd) Run(c *CLI) error {
	if _, ok := c.Data.Servers[s.Alias]; !ok {
		return fmt.Errorf("server alias %s not defined", s.Alias)
	}
	c.Data.Selected = s.Alias
	fmt.Println("Selected server " + s.Alias)
	return c.Data.Save(&c.Globals)
}

type GetAppsCmd struct {
	Id string `arg:"" optional:"" help:"An application id, or blank for all visible applications"`
}

func (gc *GetAppsCmd) Run(c *CLI) error {
	path := "/applications"
	if gc.Id != "" {
		path = path + "/" + gc.Id
	}
	raw, status, err := c.doRequest("GET", path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type GetSubscriptionsCmd struct {
	App string `arg:"" help:"The application whose subscriptions to list"`
}

func (gc *GetSubscriptionsCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("GET", "/applications/"+gc.App+"/subscriptions", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type GetApprovalsCmd struct{}

func (gc *GetApprovalsCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("GET", "/approvals", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type GetListenersCmd struct{}

func (gc *GetListenersCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("GET", "/webhooks/listeners", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type GetEventsCmd struct {
	Listener string `arg:"" help:"The listener whose queued events to fetch"`
}

func (gc *GetEventsCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("GET", "/webhooks/events/"+gc.Listener, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type GetCmd struct {
	Apps          GetAppsCmd          `cmd:"" help:"Get one or all applications"`
	Subscriptions GetSubscriptionsCmd `cmd:"" help:"List the subscriptions of an application"`
	Approvals     GetApprovalsCmd     `cmd:"" help:"List the pending approval queue"`
	Listeners     GetListenersCmd     `cmd:"" help:"List the registered webhook listeners"`
	Events        GetEventsCmd        `cmd:"" help:"List the queued events of a listener"`
}

type CreateAppCmd struct {
	Id   string `arg:"" help:"The id of the application to create"`
	Name string `arg:"" help:"The display name of the application"`
	Desc string `help:"Description of the application"`
	Uri  string `help:"OAuth2 redirect URI of the application"`
}

func (cc *CreateAppCmd) Run(c *CLI) error {
	body := map[string]interface{}{
		"id":          cc.Id,
		"name":        cc.Name,
		"description": cc.Desc,
	}
	if cc.Uri != "" {
		body["redirectUris"] = []string{cc.Uri}
	}
	raw, status, err := c.doRequest("POST", "/applications", body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type CreateListenerCmd struct {
	Id  string `arg:"" help:"The id of the listener to register"`
	Url string `arg:"" help:"The callback URL of the listener"`
}

func (cc *CreateListenerCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("PUT", "/webhooks/listeners/"+cc.Id,
		map[string]string{"id": cc.Id, "url": cc.Url})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type CreateCmd struct {
	App      CreateAppCmd      `cmd:"" help:"Register a new application"`
	Listener CreateListenerCmd `cmd:"" help:"Register a webhook listener"`
}

type SubscribeCmd struct {
	App     string `arg:"" help:"The subscribing application"`
	Api     string `arg:"" help:"The API to subscribe to"`
	Plan    string `arg:"" help:"The plan to subscribe under"`
	Trusted bool   `help:"Request a trusted subscription"`
}

func (sc *SubscribeCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("POST", "/applications/"+sc.App+"/subscriptions",
		map[string]interface{}{"api": sc.Api, "plan": sc.Plan, "trusted": sc.Trusted})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type ApproveCmd struct {
	App string `arg:"" help:"The application of the pending subscription"`
	Api string `arg:"" help:"The API of the pending subscription"`
}

func (ac *ApproveCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("PATCH", "/applications/"+ac.App+"/subscriptions/"+ac.Api,
		map[string]bool{"approved": true})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	printJson(raw)
	return nil
}

type AckCmd struct {
	Listener string `arg:"" help:"The listener whose event to acknowledge"`
	Event    string `arg:"" help:"The event id to acknowledge"`
}

func (ac *AckCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("DELETE", "/webhooks/events/"+ac.Listener+"/"+ac.Event, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	fmt.Println("Event " + ac.Event + " acknowledged.")
	return nil
}

type DeleteAppCmd struct {
	Id string `arg:"" help:"The application to delete"`
}

func (dc *DeleteAppCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("DELETE", "/applications/"+dc.Id, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	fmt.Println("Application " + dc.Id + " deleted.")
	return nil
}

type DeleteSubscriptionCmd struct {
	App string `arg:"" help:"The application of the subscription"`
	Api string `arg:"" help:"The API of the subscription"`
}

func (dc *DeleteSubscriptionCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("DELETE", "/applications/"+dc.App+"/subscriptions/"+dc.Api, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	fmt.Println("Subscription deleted.")
	return nil
}

type DeleteListenerCmd struct {
	Id string `arg:"" help:"The listener to delete"`
}

func (dc *DeleteListenerCmd) Run(c *CLI) error {
	raw, status, err := c.doRequest("DELETE", "/webhooks/listeners/"+dc.Id, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("received status %d: %s", status, string(raw))
	}
	fmt.Println("Listener " + dc.Id + " deleted.")
	return nil
}

type DeleteCmd struct {
	App          DeleteAppCmd          `cmd:"" help:"Delete an application and its subscriptions"`
	Subscription DeleteSubscriptionCmd `cmd:"" help:"Delete (or decline) a subscription"`
	Listener     DeleteListenerCmd     `cmd:"" help:"Delete a webhook listener and its event log"`
}

type ShowCmd struct{}

func (sc *ShowCmd) Run(c *CLI) error {
	c.Data.Print()
	return nil
}

type ExitCmd struct{}

func (e *ExitCmd) Run(c *CLI) error {
	err := c.Data.Save(&c.Globals)
	if err != nil {
		fmt.Println(err.Error())
	}
	os.Exit(0)
	return nil
}

type HelpCmd struct {
	Command []string `arg:"" optional:"" help:"Show help on command"`
}

func (h *HelpCmd) Run(realCtx *kong.Context) error {
	ctx, err := kong.Trace(realCtx.Kong, h.Command)
	if err != nil {
		return err
	}
	if ctx.Error != nil {
		return ctx.Error
	}
	if err := ctx.PrintUsage(false); err != nil {
		return err
	}
	fmt.Fprintln(realCtx.Stdout)
	return nil
}

type VersionCmd struct{}

func (v *VersionCmd) Run(c *CLI) error {
	fmt.Println("portalTool " + Version)
	return nil
}
