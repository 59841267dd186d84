package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/catalog"
	"github.com/open-apim/portal-core/internal/model"
	"github.com/open-apim/portal-core/internal/providers/dbProviders/mock_provider"
	portal "github.com/open-apim/portal-core/pkg/portal/server"
)

var testLog = log.New(os.Stdout, "TEST:    ", log.Ldate|log.Ltime)

var allScopes = []string{
	authtoken.ScopeReadApplications,
	authtoken.ScopeWriteApplications,
	authtoken.ScopeReadSubscriptions,
	authtoken.ScopeWriteSubscriptions,
	authtoken.ScopeReadApprovals,
	authtoken.ScopeWebhooks,
	authtoken.ScopeReadGrants,
	authtoken.ScopeWriteGrants,
}

type portalInstance struct {
	server   *http.Server
	client   *http.Client
	provider *mock_provider.MockPortalProvider
	app      *portal.PortalApplication
	baseUrl  string

	adminToken    string
	devToken      string
	approverToken string
	noScopeToken  string
}

type ServerSuite struct {
	suite.Suite
	instance *portalInstance

	pendingSubId string
	clientId     string
}

func testCatalog() catalog.Catalog {
	apis := []model.API{
		{
			Id:       "orders",
			Name:     "Orders API",
			AuthMode: model.AuthModeOAuth2,
			Plans:    []string{"basic", "premium"},
			Settings: model.ApiSettings{EnableAuthorizationCode: true},
		},
		{
			Id:       "weather",
			Name:     "Weather API",
			AuthMode: model.AuthModeApiKey,
			Plans:    []string{"basic", "partner"},
		},
	}
	plans := []model.Plan{
		{Id: "basic", Name: "Basic"},
		{Id: "premium", Name: "Premium", RequiresApproval: true},
		{Id: "partner", Name: "Partner", RequiresApproval: true, RestrictedGroups: []string{"partners"}},
	}
	return catalog.NewStatic(apis, plans)
}

func TestServer(t *testing.T) {
	fmt.Println("NOTE: This test may log Prometheus duplicate collector registration warnings. This is due to the test environment only.")

	instance, err := createServer("portal_test")
	if err != nil {
		t.Fatalf("Error starting portal server: %s", err.Error())
	}

	serverSuite := ServerSuite{instance: instance}
	suite.Run(t, &serverSuite)

	testLog.Println("** Shutting down test server...")
	instance.app.Shutdown()
	time.Sleep(time.Second)
	testLog.Println("** TEST COMPLETE **")
}

func createServer(dbName string) (*portalInstance, error) {
	var instance portalInstance
	provider, err := mock_provider.Open("mockdb://server-test/", dbName)
	if err != nil {
		return nil, err
	}
	_ = provider.ResetDb(true)

	listener, _ := net.Listen("tcp", "localhost:0")

	app := portal.StartServer(listener.Addr().String(), provider, testCatalog(), "")
	instance.app = app
	instance.server = app.Server
	instance.client = &http.Client{}
	instance.provider = provider
	instance.baseUrl = "http://" + listener.Addr().String()

	issuer := provider.GetAuthIssuer()
	instance.adminToken, err = issuer.IssueUserToken("admin1", "admin@example.org", []string{model.AdminGroup}, allScopes)
	if err != nil {
		return nil, err
	}
	instance.devToken, _ = issuer.IssueUserToken("dev1", "dev@example.org", nil, allScopes)
	instance.approverToken, _ = issuer.IssueUserToken("approver1", "approver@example.org", []string{"partners"}, allScopes)
	instance.noScopeToken, _ = issuer.IssueUserToken("limited1", "limited@example.org", nil, []string{authtoken.ScopeReadApplications})

	go func() {
		_ = app.Server.Serve(listener)
	}()
	return &instance, nil
}

func (suite *ServerSuite) request(method string, path string, token string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(suite.T(), err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, suite.instance.baseUrl+path, reader)
	assert.NoError(suite.T(), err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := suite.instance.client.Do(req)
	assert.NoError(suite.T(), err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(raw, v), "body was: %s", string(raw))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &body)
	return body.Code
}

func (suite *ServerSuite) Test1_HealthAndJwks() {
	resp, err := http.Get(suite.instance.baseUrl + "/health")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	jwksUrl := suite.instance.baseUrl + "/jwks.json"
	resp, err = http.Get(jwksUrl)
	assert.NoError(suite.T(), err)
	body, _ := io.ReadAll(resp.Body)
	assert.NotNil(suite.T(), body)

	var rawJson json.RawMessage
	_ = rawJson.UnmarshalJSON(body)
	issPub, err := keyfunc.NewJSON(rawJson)
	assert.NoError(suite.T(), err, "No error parsing published JWKS")
	assert.Equal(suite.T(), "DEFAULT", issPub.KIDs()[0], "Kid is DEFAULT")
}

func (suite *ServerSuite) Test2_ScopeEnforcement() {
	t := suite.T()

	// no token at all
	resp := suite.request("GET", "/applications", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN_SCOPE", errorCode(t, resp))

	// token lacking the write scope
	resp = suite.request("POST", "/applications", suite.instance.noScopeToken,
		map[string]string{"id": "nope-app", "name": "Nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN_SCOPE", errorCode(t, resp))

	// garbage token
	req, _ := http.NewRequest("GET", suite.instance.baseUrl+"/applications", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err := suite.instance.client.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func (suite *ServerSuite) Test3_ApplicationLifecycle() {
	t := suite.T()

	resp := suite.request("POST", "/applications", suite.instance.devToken, map[string]interface{}{
		"id":           "dev-app",
		"name":         "Dev App",
		"redirectUris": []string{"https://dev-app.example.org/cb"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var app model.Application
	decodeBody(t, resp, &app)
	assert.Equal(t, "dev1", app.Owners[0].UserId)

	// invalid id
	resp = suite.request("POST", "/applications", suite.instance.devToken,
		map[string]string{"id": "Bad Id!", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorCode(t, resp))

	// duplicate id
	resp = suite.request("POST", "/applications", suite.instance.adminToken,
		map[string]string{"id": "dev-app", "name": "Mine now"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// another user's view is empty, admin sees it
	resp = suite.request("GET", "/applications", suite.instance.approverToken, nil)
	var apps []model.Application
	decodeBody(t, resp, &apps)
	assert.Empty(t, apps)

	resp = suite.request("GET", "/applications", suite.instance.adminToken, nil)
	decodeBody(t, resp, &apps)
	assert.Len(t, apps, 1)

	// non-owner read is forbidden with the role kind, not the scope kind
	resp = suite.request("GET", "/applications/dev-app", suite.instance.approverToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	// owner management
	resp = suite.request("POST", "/applications/dev-app/owners", suite.instance.devToken,
		model.Owner{UserId: "approver1", Email: "approver@example.org", Role: model.RoleReader})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = suite.request("DELETE", "/applications/dev-app/owners/dev1", suite.instance.devToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "sole owner cannot be removed")

	resp = suite.request("DELETE", "/applications/dev-app/owners/approver1", suite.instance.devToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func (suite *ServerSuite) Test4_WebhookListenerRegistration() {
	t := suite.T()

	// id too short
	resp := suite.request("PUT", "/webhooks/listeners/ab", suite.instance.adminToken,
		map[string]string{"url": "http://mailer.internal/hook"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// body id mismatch
	resp = suite.request("PUT", "/webhooks/listeners/mailer", suite.instance.adminToken,
		map[string]string{"id": "other", "url": "http://mailer.internal/hook"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// missing url
	resp = suite.request("PUT", "/webhooks/listeners/mailer", suite.instance.adminToken,
		map[string]string{"id": "mailer"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = suite.request("PUT", "/webhooks/listeners/mailer", suite.instance.adminToken,
		map[string]string{"id": "mailer", "url": "http://mailer.internal/hook"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = suite.request("GET", "/webhooks/listeners", suite.instance.adminToken, nil)
	var listeners []model.WebhookListener
	decodeBody(t, resp, &listeners)
	assert.Len(t, listeners, 1)

	// new log starts empty
	resp = suite.request("GET", "/webhooks/events/mailer", suite.instance.adminToken, nil)
	var events []model.Event
	decodeBody(t, resp, &events)
	assert.Empty(t, events)
}

func (suite *ServerSuite) Test5_SubscriptionApprovalFlow() {
	t := suite.T()

	// request on a plan requiring approval
	resp := suite.request("POST", "/applications/dev-app/subscriptions", suite.instance.devToken,
		map[string]string{"api": "orders", "plan": "premium"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var sub model.Subscription
	decodeBody(t, resp, &sub)
	assert.False(t, sub.Approved)
	assert.Nil(t, sub.Credential)
	suite.pendingSubId = sub.Id

	// the listener registered in Test4 received subscription + approval events
	resp = suite.request("GET", "/webhooks/events/mailer", suite.instance.adminToken, nil)
	var events []model.Event
	decodeBody(t, resp, &events)
	assert.Len(t, events, 2)
	assert.Equal(t, model.EntitySubscription, events[0].Entity)
	assert.Equal(t, model.EntityApproval, events[1].Entity)
	assert.Equal(t, "dev-app", events[0].Data["applicationId"])

	// requester cannot see the unrestricted approval queue
	resp = suite.request("GET", "/approvals", suite.instance.devToken, nil)
	var approvals []model.ApprovalRequest
	decodeBody(t, resp, &approvals)
	assert.Empty(t, approvals)

	resp = suite.request("GET", "/approvals", suite.instance.adminToken, nil)
	decodeBody(t, resp, &approvals)
	assert.Len(t, approvals, 1)
	assert.Equal(t, suite.pendingSubId, approvals[0].Id)
	assert.Equal(t, "Dev App", approvals[0].Application.Name)

	// out-of-scope approval id reads as 404 for the approver
	resp = suite.request("GET", "/approvals/"+suite.pendingSubId, suite.instance.approverToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// requester may not self-approve
	resp = suite.request("PATCH", "/applications/dev-app/subscriptions/orders", suite.instance.devToken,
		map[string]bool{"approved": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// admin approves; credential is issued
	resp = suite.request("PATCH", "/applications/dev-app/subscriptions/orders", suite.instance.adminToken,
		map[string]bool{"approved": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &sub)
	assert.True(t, sub.Approved)
	assert.NotNil(t, sub.Credential)
	assert.NotEmpty(t, sub.Credential.ClientId)
	suite.clientId = sub.Credential.ClientId

	// approving again is a no-op, credential unchanged
	resp = suite.request("PATCH", "/applications/dev-app/subscriptions/orders", suite.instance.adminToken,
		map[string]bool{"approved": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var again model.Subscription
	decodeBody(t, resp, &again)
	assert.Equal(t, suite.clientId, again.Credential.ClientId)

	// queue drained
	resp = suite.request("GET", "/approvals", suite.instance.adminToken, nil)
	decodeBody(t, resp, &approvals)
	assert.Empty(t, approvals)

	// duplicate subscription for the same pair
	resp = suite.request("POST", "/applications/dev-app/subscriptions", suite.instance.devToken,
		map[string]string{"api": "orders", "plan": "basic"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(t, resp))
}

func (suite *ServerSuite) Test6_ReverseClientIdLookup() {
	t := suite.T()

	resp := suite.request("GET", "/subscriptions/"+suite.clientId, suite.instance.devToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "reverse lookup is admin only")

	resp = suite.request("GET", "/subscriptions/"+suite.clientId, suite.instance.adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var info struct {
		Subscription model.Subscription `json:"subscription"`
		Application  model.Application  `json:"application"`
	}
	decodeBody(t, resp, &info)
	assert.Equal(t, "dev-app", info.Application.Id)
	assert.Equal(t, "orders", info.Subscription.ApiId)

	resp = suite.request("GET", "/subscriptions/unknown-client", suite.instance.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (suite *ServerSuite) Test7_EventAckAndFlush() {
	t := suite.T()

	resp := suite.request("GET", "/webhooks/events/mailer", suite.instance.adminToken, nil)
	var events []model.Event
	decodeBody(t, resp, &events)
	assert.True(t, len(events) >= 3, "approval flow queued more events")

	first := events[0]
	resp = suite.request("DELETE", "/webhooks/events/mailer/"+first.Id, suite.instance.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = suite.request("DELETE", "/webhooks/events/mailer/"+first.Id, suite.instance.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "ack is not idempotent")

	resp = suite.request("GET", "/webhooks/events/mailer", suite.instance.adminToken, nil)
	var remaining []model.Event
	decodeBody(t, resp, &remaining)
	assert.Len(t, remaining, len(events)-1)
	assert.Equal(t, events[1].Id, remaining[0].Id, "order preserved after ack")

	resp = suite.request("DELETE", "/webhooks/events/mailer", suite.instance.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = suite.request("GET", "/webhooks/events/mailer", suite.instance.adminToken, nil)
	decodeBody(t, resp, &remaining)
	assert.Empty(t, remaining)
}

func (suite *ServerSuite) Test8_Grants() {
	t := suite.T()

	grantPath := "/grants/dev1/applications/dev-app/apis/orders"
	resp := suite.request("PUT", grantPath, suite.instance.devToken, map[string]interface{}{
		"scopes": []map[string]string{{"scope": "read_orders"}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var grant model.Grant
	decodeBody(t, resp, &grant)
	assert.Equal(t, "dev1", grant.UserId)
	assert.False(t, grant.Scopes[0].GrantedDate.IsZero())

	// other users may not touch them, admins may
	resp = suite.request("GET", grantPath, suite.instance.approverToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = suite.request("GET", grantPath, suite.instance.adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = suite.request("GET", "/grants/dev1", suite.instance.devToken, nil)
	var grants []model.Grant
	decodeBody(t, resp, &grants)
	assert.Len(t, grants, 1)

	resp = suite.request("DELETE", "/grants/dev1", suite.instance.devToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = suite.request("GET", "/grants/dev1", suite.instance.devToken, nil)
	decodeBody(t, resp, &grants)
	assert.Empty(t, grants)
}

func (suite *ServerSuite) Test9_Prometheus() {
	t := suite.T()

	label := prometheus.Labels{
		"action": "add",
		"entity": "subscription",
	}
	counter, err := suite.instance.app.Stats.EventsOut.GetMetricWith(label)
	assert.NoError(t, err)
	assert.True(t, testutil.ToFloat64(counter) >= 1, "subscription add events were counted")

	resp, err := http.Get(suite.instance.baseUrl + "/metrics")
	assert.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "portal_http_duration_seconds")
}
