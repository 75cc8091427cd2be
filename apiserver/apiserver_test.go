// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package apiserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/d-pohl/Mediator.Net/apiserver"
	"github.com/d-pohl/Mediator.Net/config"
	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/internal/historian"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

func TestPackage(t *testing.T) {
	gc.TestingT(t)
}

// fakeCore backs the server with an in-memory variable table and a two-level
// object tree per module: Root above Child.
type fakeCore struct {
	starting atomic.Bool

	mu     sync.Mutex
	values map[object.VariableRef]vtq.VTQ
	writes []object.VariableValue
}

func newFakeCore() *fakeCore {
	return &fakeCore{values: make(map[object.VariableRef]vtq.VTQ)}
}

func (f *fakeCore) set(ref object.VariableRef, v vtq.VTQ) {
	f.mu.Lock()
	f.values[ref] = v
	f.mu.Unlock()
}

func (f *fakeCore) written() []object.VariableValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]object.VariableValue(nil), f.writes...)
}

func (f *fakeCore) Starting() bool { return f.starting.Load() }

func (f *fakeCore) ModuleInfos() []params.ModuleInfo {
	return []params.ModuleInfo{{ID: "IO", Name: "IO", Enabled: true, State: "Running"}}
}

func (f *fakeCore) Locations() []object.Location { return nil }

func (f *fakeCore) MetaInfo(string) (object.MetaInfo, error) {
	return object.MetaInfo{}, nil
}

func (f *fakeCore) AllObjects(moduleID string) ([]object.ObjectInfo, error) {
	return nil, errors.NotFoundf("module %q", moduleID)
}

func (f *fakeCore) ObjectsOfType(string, string, bool) ([]object.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeCore) ObjectsByID([]object.ObjectRef) ([]object.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeCore) ObjectValuesByID([]object.ObjectRef) ([]object.ObjectValue, error) {
	return nil, nil
}

func (f *fakeCore) ChildrenOfObjects([]object.ObjectRef) ([]object.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeCore) ParentOfObject(object.ObjectRef) (*object.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeCore) RootObject(moduleID string) (object.ObjectInfo, error) {
	return object.ObjectInfo{ID: object.MakeObjectRef(moduleID, "Root")}, nil
}

func (f *fakeCore) ObjectAncestors(ref object.ObjectRef) []object.ObjectRef {
	switch ref.ID {
	case "Root":
		return []object.ObjectRef{ref}
	case "Child":
		return []object.ObjectRef{ref, object.MakeObjectRef(ref.Module, "Root")}
	}
	return nil
}

func (f *fakeCore) MemberValues(context.Context, []object.MemberRef) ([]object.MemberValue, error) {
	return nil, nil
}

func (f *fakeCore) BrowseMember(context.Context, object.MemberRef) ([]string, error) {
	return []string{"a", "b"}, nil
}

func (f *fakeCore) ReadVariables(refs []object.VariableRef, ignoreMissing bool) ([]vtq.VTQ, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]vtq.VTQ, len(refs))
	for i, ref := range refs {
		v, ok := f.values[ref]
		if !ok {
			if !ignoreMissing {
				return nil, errors.NotFoundf("variable %q", ref)
			}
			v = vtq.VTQ{Q: vtq.Bad}
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeCore) ReadVariablesSync(_ context.Context, _ object.Origin, refs []object.VariableRef, ignoreMissing bool) ([]vtq.VTQ, error) {
	return f.ReadVariables(refs, ignoreMissing)
}

func (f *fakeCore) WriteVariables(_ object.Origin, values []object.VariableValue, _ bool) ([]module.WriteResult, error) {
	f.mu.Lock()
	f.writes = append(f.writes, values...)
	for _, v := range values {
		f.values[v.Variable] = v.Value
	}
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeCore) WriteVariablesSync(_ context.Context, origin object.Origin, values []object.VariableValue, ignoreMissing bool) ([]module.WriteResult, error) {
	return f.WriteVariables(origin, values, ignoreMissing)
}

func (f *fakeCore) ReadAllVariablesOfObjectTree(object.ObjectRef) ([]object.VariableValue, error) {
	return nil, nil
}

func (f *fakeCore) VariablesOfObjectTree(root object.ObjectRef) ([]object.VariableRef, error) {
	return []object.VariableRef{{Object: root, Name: "X"}}, nil
}

func (f *fakeCore) UpdateConfig(context.Context, object.Origin, module.UpdateConfigRequest) ([]object.ObjectRef, error) {
	return nil, nil
}

func (f *fakeCore) CallMethod(_ context.Context, _ object.Origin, moduleID, method string, _ []object.NamedValue) (vtq.Value, error) {
	return vtq.StringValue(moduleID + "." + method), nil
}

// fakeHistory returns canned history data and records deletes.
type fakeHistory struct {
	mu      sync.Mutex
	deleted []object.VariableRef
}

func (f *fakeHistory) ReadRaw(_ context.Context, req historian.ReadRawRequest) ([]vtq.VTTQ, error) {
	if req.MaxValues == 0 {
		return nil, nil
	}
	return []vtq.VTTQ{{
		V:   vtq.FloatValue(1),
		T:   vtq.TimestampFromMillis(1000),
		TDB: vtq.TimestampFromMillis(1001),
		Q:   vtq.Good,
	}}, nil
}

func (f *fakeHistory) Count(context.Context, object.VariableRef, vtq.Timestamp, vtq.Timestamp, params.QualityFilter) (int64, error) {
	return 3, nil
}

func (f *fakeHistory) Modify(context.Context, object.VariableRef, params.ModifyMode, []vtq.VTQ) error {
	return nil
}

func (f *fakeHistory) DeleteInterval(context.Context, object.VariableRef, vtq.Timestamp, vtq.Timestamp) (int64, error) {
	return 2, nil
}

func (f *fakeHistory) LatestTimestampDB(context.Context, object.VariableRef, vtq.Timestamp, vtq.Timestamp) (vtq.Timestamp, error) {
	return vtq.TimestampFromMillis(9000), nil
}

func (f *fakeHistory) DeleteVariables(_ context.Context, vars []object.VariableRef) (int64, error) {
	f.mu.Lock()
	f.deleted = append(f.deleted, vars...)
	f.mu.Unlock()
	return int64(len(vars)), nil
}

type ServerSuite struct {
	jujutesting.IsolationSuite

	core    *fakeCore
	history *fakeHistory
	hub     *pubsub.SimpleHub
	server  *apiserver.Server
	base    string
	client  *http.Client
}

var _ = gc.Suite(&ServerSuite{})

const (
	testUser     = "op"
	testPassword = "secret"
)

func (s *ServerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.core = newFakeCore()
	s.history = &fakeHistory{}
	s.hub = pubsub.NewSimpleHub(nil)

	cfg, err := config.Parse([]byte(`
<Mediator>
  <SessionIdleTimeout>300ms</SessionIdleTimeout>
  <UserManagement>
    <User Login="op" Password="secret" Roles="Operator"/>
  </UserManagement>
  <Modules>
    <Module ID="CALC" ImplClass="Calc" Password="modpw"/>
  </Modules>
</Mediator>`))
	c.Assert(err, jc.ErrorIsNil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, jc.ErrorIsNil)

	s.server, err = apiserver.NewServer(apiserver.Config{
		Mediator: cfg,
		Core:     s.core,
		History:  s.history,
		Hub:      s.hub,
		Clock:    clock.WallClock,
		Listener: listener,
	})
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) { workertest.CleanKill(c, s.server) })

	s.base = "http://" + s.server.Addr().String()
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// post sends one RPC request and returns the status code and raw body.
func (s *ServerSuite) post(c *gc.C, method string, req interface{}) (int, []byte) {
	data, err := json.Marshal(req)
	c.Assert(err, jc.ErrorIsNil)
	resp, err := s.client.Post(s.base+"/mediator/"+method, "application/json", bytes.NewReader(data))
	c.Assert(err, jc.ErrorIsNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	c.Assert(err, jc.ErrorIsNil)
	return resp.StatusCode, body
}

// call sends one RPC request expecting success and decodes the response.
func (s *ServerSuite) call(c *gc.C, method string, req, into interface{}) {
	status, body := s.post(c, method, req)
	c.Assert(status, gc.Equals, http.StatusOK, gc.Commentf("%s: %s", method, body))
	if into != nil {
		c.Assert(json.Unmarshal(body, into), jc.ErrorIsNil)
	}
}

// login performs the full challenge handshake and returns the session id.
func (s *ServerSuite) login(c *gc.C) string {
	var lr params.LoginResponse
	s.call(c, params.MethodLogin, params.LoginRequest{Login: testUser}, &lr)
	c.Assert(lr.Session, gc.Not(gc.Equals), "")
	c.Assert(lr.Challenge, gc.Not(gc.Equals), "")

	var ar params.AuthenticateResponse
	s.call(c, params.MethodAuthenticate, params.AuthenticateRequest{
		Session: lr.Session,
		Hash:    apiserver.ChallengeHash(testPassword, lr.Challenge, lr.Session),
	}, &ar)
	c.Assert(ar.Session, gc.Equals, lr.Session)
	return lr.Session
}

func (s *ServerSuite) TestLoginHandshake(c *gc.C) {
	session := s.login(c)

	var user params.LoginUserResponse
	s.call(c, params.MethodGetLoginUser, params.GetLoginUserRequest{Session: session}, &user)
	c.Check(user.Login, gc.Equals, testUser)
	c.Check(user.Roles, jc.DeepEquals, []string{"Operator"})
	c.Check(user.IsModule, jc.IsFalse)
}

func (s *ServerSuite) TestModuleLogin(c *gc.C) {
	var lr params.LoginResponse
	s.call(c, params.MethodLogin, params.LoginRequest{ModuleID: "CALC"}, &lr)
	var ar params.AuthenticateResponse
	s.call(c, params.MethodAuthenticate, params.AuthenticateRequest{
		Session: lr.Session,
		Hash:    apiserver.ChallengeHash("modpw", lr.Challenge, lr.Session),
	}, &ar)

	var user params.LoginUserResponse
	s.call(c, params.MethodGetLoginUser, params.GetLoginUserRequest{Session: lr.Session}, &user)
	c.Check(user.Login, gc.Equals, "CALC")
	c.Check(user.IsModule, jc.IsTrue)
}

func (s *ServerSuite) TestWrongHashRejectedAndSessionGone(c *gc.C) {
	var lr params.LoginResponse
	s.call(c, params.MethodLogin, params.LoginRequest{Login: testUser}, &lr)

	status, body := s.post(c, params.MethodAuthenticate, params.AuthenticateRequest{
		Session: lr.Session,
		Hash:    "0000000000000000",
	})
	c.Check(status, gc.Equals, http.StatusUnauthorized)
	var apiErr params.Error
	c.Assert(json.Unmarshal(body, &apiErr), jc.ErrorIsNil)
	c.Check(apiErr.Message, gc.Equals, "authentication failed")

	// The failed attempt burns the session.
	status, _ = s.post(c, params.MethodAuthenticate, params.AuthenticateRequest{
		Session: lr.Session,
		Hash:    apiserver.ChallengeHash(testPassword, lr.Challenge, lr.Session),
	})
	c.Check(status, gc.Equals, http.StatusBadRequest)
}

func (s *ServerSuite) TestUnknownLoginRejected(c *gc.C) {
	status, _ := s.post(c, params.MethodLogin, params.LoginRequest{Login: "nobody"})
	c.Check(status, gc.Equals, http.StatusUnauthorized)
}

func (s *ServerSuite) TestLogoutInvalidatesSession(c *gc.C) {
	session := s.login(c)
	s.call(c, params.MethodLogout, params.LogoutRequest{Session: session}, nil)

	status, _ := s.post(c, params.MethodGetModules, params.GetModulesRequest{Session: session})
	c.Check(status, gc.Equals, http.StatusBadRequest)
}

func (s *ServerSuite) TestRequestsRejectedDuringStartup(c *gc.C) {
	s.core.starting.Store(true)
	session := s.login(c)

	status, body := s.post(c, params.MethodGetModules, params.GetModulesRequest{Session: session})
	c.Check(status, gc.Equals, http.StatusServiceUnavailable)
	var apiErr params.Error
	c.Assert(json.Unmarshal(body, &apiErr), jc.ErrorIsNil)
	c.Check(apiErr.Message, gc.Equals, "mediator is starting")

	s.core.starting.Store(false)
	var infos []params.ModuleInfo
	s.call(c, params.MethodGetModules, params.GetModulesRequest{Session: session}, &infos)
	c.Assert(infos, gc.HasLen, 1)
	c.Check(infos[0].ID, gc.Equals, "IO")
}

func (s *ServerSuite) TestUnknownMethod(c *gc.C) {
	status, body := s.post(c, "NoSuchMethod", struct{}{})
	c.Check(status, gc.Equals, http.StatusBadRequest)

	// The failure document uses lowercase keys on the wire.
	var doc map[string]interface{}
	c.Assert(json.Unmarshal(body, &doc), jc.ErrorIsNil)
	c.Check(doc["error"], gc.Equals, "unknown method NoSuchMethod")
	c.Check(doc["code"], gc.Equals, params.CodeBadRequest)
}

func (s *ServerSuite) TestMalformedBodyIsBareBadRequest(c *gc.C) {
	resp, err := s.client.Post(s.base+"/mediator/"+params.MethodLogin, "application/json",
		bytes.NewReader([]byte("{not json")))
	c.Assert(err, jc.ErrorIsNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(resp.StatusCode, gc.Equals, http.StatusBadRequest)
	c.Check(body, gc.HasLen, 0)
}

func (s *ServerSuite) TestInvalidSession(c *gc.C) {
	status, body := s.post(c, params.MethodGetModules, params.GetModulesRequest{Session: "bogus"})
	c.Check(status, gc.Equals, http.StatusBadRequest)
	var apiErr params.Error
	c.Assert(json.Unmarshal(body, &apiErr), jc.ErrorIsNil)
	c.Check(apiErr.Message, gc.Equals, "invalid session")
}

func (s *ServerSuite) TestReadWriteRoundTrip(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")
	value := vtq.Make(vtq.FloatValue(1.5), vtq.TimestampFromMillis(2000), vtq.Good)

	var wr params.WriteVariablesResponse
	s.call(c, params.MethodWriteVariablesSync, params.WriteVariablesRequest{
		Session: session,
		Values:  []object.VariableValue{{Variable: ref, Value: value}},
	}, &wr)
	c.Check(wr.Failed, gc.HasLen, 0)
	c.Check(s.core.written(), gc.HasLen, 1)

	var values params.VTQList
	s.call(c, params.MethodReadVariables, params.ReadVariablesRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	}, &values)
	c.Assert(values, gc.HasLen, 1)
	c.Check(values[0], jc.DeepEquals, value)
}

func (s *ServerSuite) TestReadVariablesNotFound(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "Nope")

	status, body := s.post(c, params.MethodReadVariables, params.ReadVariablesRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	})
	c.Check(status, gc.Equals, http.StatusBadRequest)
	var apiErr params.Error
	c.Assert(json.Unmarshal(body, &apiErr), jc.ErrorIsNil)
	c.Check(apiErr.Code, gc.Equals, params.CodeNotFound)

	var values params.VTQList
	s.call(c, params.MethodReadVariablesIgnoreMissing, params.ReadVariablesRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	}, &values)
	c.Assert(values, gc.HasLen, 1)
	c.Check(values[0].Q, gc.Equals, vtq.Bad)
}

func (s *ServerSuite) TestBinaryCodecRoundTrip(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")
	value := vtq.Make(vtq.FloatValue(2.5), vtq.TimestampFromMillis(3000), vtq.Good)
	s.core.set(ref, value)

	req := params.ReadVariablesRequest{Session: session, Variables: []object.VariableRef{ref}}
	data, err := req.MarshalBinary()
	c.Assert(err, jc.ErrorIsNil)

	httpReq, err := http.NewRequest("POST", s.base+"/mediator/"+params.MethodReadVariables, bytes.NewReader(data))
	c.Assert(err, jc.ErrorIsNil)
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("Accept", "application/octet-stream")
	resp, err := s.client.Do(httpReq)
	c.Assert(err, jc.ErrorIsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, gc.Equals, http.StatusOK)
	c.Check(resp.Header.Get("Content-Type"), gc.Equals, "application/octet-stream")

	body, err := io.ReadAll(resp.Body)
	c.Assert(err, jc.ErrorIsNil)
	var values params.VTQList
	c.Assert(values.UnmarshalBinary(body), jc.ErrorIsNil)
	c.Assert(values, gc.HasLen, 1)
	c.Check(values[0], jc.DeepEquals, value)
}

func (s *ServerSuite) TestHistorianMethods(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")

	var values []vtq.VTTQ
	s.call(c, params.MethodHistorianReadRaw, params.HistorianReadRawRequest{
		Session:        session,
		Variable:       ref,
		StartInclusive: vtq.Empty,
		EndInclusive:   vtq.Max,
		MaxValues:      -1,
	}, &values)
	c.Assert(values, gc.HasLen, 1)
	c.Check(values[0].V, gc.Equals, vtq.FloatValue(1))

	var count params.CountResponse
	s.call(c, params.MethodHistorianCount, params.HistorianCountRequest{
		Session:      session,
		Variable:     ref,
		EndInclusive: vtq.Max,
	}, &count)
	c.Check(count.Count, gc.Equals, int64(3))

	var latest params.TimestampResponse
	s.call(c, params.MethodHistorianGetLatestTimestampDB, params.HistorianGetLatestTimestampDBRequest{
		Session:      session,
		Variable:     ref,
		EndInclusive: vtq.Max,
	}, &latest)
	c.Check(latest.T, gc.Equals, vtq.TimestampFromMillis(9000))

	// Deleting a tree resolves the variables through the core first.
	var deleted params.DeletedResponse
	s.call(c, params.MethodHistorianDeleteAllVariablesOfObjectTree, params.HistorianDeleteAllVariablesOfObjectTreeRequest{
		Session:  session,
		ObjectID: object.MakeObjectRef("IO", "Root"),
	}, &deleted)
	c.Check(deleted.Deleted, gc.Equals, int64(1))
	c.Check(s.history.deleted, jc.DeepEquals, []object.VariableRef{{
		Object: object.MakeObjectRef("IO", "Root"), Name: "X",
	}})
}

// dialEvents opens the event socket and binds it to the session.
func (s *ServerSuite) dialEvents(c *gc.C, session string) *websocket.Conn {
	url := "ws://" + s.server.Addr().String() + "/mediator/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(*gc.C) { _ = conn.Close() })
	c.Assert(conn.WriteMessage(websocket.TextMessage, []byte(session)), jc.ErrorIsNil)
	return conn
}

func readFrame(c *gc.C, conn *websocket.Conn, into interface{}) {
	c.Assert(conn.SetReadDeadline(time.Now().Add(jujutesting.LongWait)), jc.ErrorIsNil)
	_, data, err := conn.ReadMessage()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(json.Unmarshal(data, into), jc.ErrorIsNil)
}

func ack(c *gc.C, conn *websocket.Conn) {
	c.Assert(conn.WriteMessage(websocket.TextMessage, []byte("OK")), jc.ErrorIsNil)
}

func variableEvent(ref object.VariableRef, value vtq.VTQ) eventing.VariableValuesEvent {
	return eventing.VariableValuesEvent{
		ModuleID: ref.Object.Module,
		Values:   []eventing.VariableValuePrev{{Variable: ref, Value: value}},
	}
}

func (s *ServerSuite) TestVariableEventPush(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")
	s.call(c, params.MethodEnableVariableValueChangedEvents, params.EnableVariableValueChangedEventsRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	}, nil)
	conn := s.dialEvents(c, session)

	v1 := vtq.Make(vtq.FloatValue(1), vtq.TimestampFromMillis(1000), vtq.Good)
	s.hub.Publish(eventing.TopicVariableValues, variableEvent(ref, v1))

	var frame params.VariableValuesEventFrame
	readFrame(c, conn, &frame)
	c.Check(frame.Event, gc.Equals, params.EventVariableValueChanged)
	c.Assert(frame.Values, gc.HasLen, 1)
	c.Check(frame.Values[0].Value, jc.DeepEquals, v1)
	ack(c, conn)

	// Next event flows only after the ack.
	v2 := vtq.Make(vtq.FloatValue(2), vtq.TimestampFromMillis(2000), vtq.Good)
	s.hub.Publish(eventing.TopicVariableValues, variableEvent(ref, v2))
	readFrame(c, conn, &frame)
	c.Assert(frame.Values, gc.HasLen, 1)
	c.Check(frame.Values[0].Value, jc.DeepEquals, v2)
	ack(c, conn)
}

func (s *ServerSuite) TestTreeRootedSubscription(c *gc.C) {
	session := s.login(c)
	s.call(c, params.MethodEnableVariableValueChangedEvents, params.EnableVariableValueChangedEventsRequest{
		Session:   session,
		TreeRoots: []object.ObjectRef{object.MakeObjectRef("IO", "Root")},
	}, nil)
	conn := s.dialEvents(c, session)

	// A variable of a descendant object matches the subscribed root.
	childRef := object.MakeVariableRef("IO", "Child", "Y")
	otherRef := object.MakeVariableRef("OTHER", "Root", "Z")
	v := vtq.Make(vtq.FloatValue(5), vtq.TimestampFromMillis(1000), vtq.Good)
	s.hub.Publish(eventing.TopicVariableValues, variableEvent(otherRef, v))
	s.hub.Publish(eventing.TopicVariableValues, variableEvent(childRef, v))

	var frame params.VariableValuesEventFrame
	readFrame(c, conn, &frame)
	c.Assert(frame.Values, gc.HasLen, 1)
	c.Check(frame.Values[0].Variable, gc.Equals, childRef)
	ack(c, conn)
}

func (s *ServerSuite) TestCoalescingKeepsLatestValue(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")
	s.call(c, params.MethodEnableVariableValueChangedEvents, params.EnableVariableValueChangedEventsRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	}, nil)

	// Without a socket the updates pile up and coalesce per variable.
	for i := 1; i <= 5; i++ {
		s.hub.Publish(eventing.TopicVariableValues, variableEvent(ref,
			vtq.Make(vtq.FloatValue(float64(i)), vtq.TimestampFromMillis(int64(i*1000)), vtq.Good)))
	}
	// Wait for the hub to finish delivering before attaching.
	wait := s.hub.Publish(eventing.TopicVariableValues, eventing.VariableValuesEvent{})
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(jujutesting.LongWait):
		c.Fatalf("hub never completed delivery")
	}

	conn := s.dialEvents(c, session)
	var frame params.VariableValuesEventFrame
	readFrame(c, conn, &frame)
	c.Assert(frame.Values, gc.HasLen, 1)
	c.Check(frame.Values[0].Value.V, gc.Equals, vtq.FloatValue(5))
	ack(c, conn)
}

func (s *ServerSuite) TestAlarmSeverityFilter(c *gc.C) {
	session := s.login(c)
	s.call(c, params.MethodEnableAlarmsAndEvents, params.EnableAlarmsAndEventsRequest{
		Session:     session,
		MinSeverity: eventing.SeverityWarning,
	}, nil)
	conn := s.dialEvents(c, session)

	s.hub.Publish(eventing.TopicAlarmOrEvent, eventing.SystemEvent(
		vtq.TimestampFromMillis(1000), eventing.SeverityInfo, "IO", "Chatter", "ignored"))
	s.hub.Publish(eventing.TopicAlarmOrEvent, eventing.SystemEvent(
		vtq.TimestampFromMillis(2000), eventing.SeverityAlarm, "IO", "Overheat", "temperature high"))

	var frame params.AlarmOrEventsFrame
	readFrame(c, conn, &frame)
	c.Check(frame.Event, gc.Equals, params.EventAlarmOrEvents)
	c.Assert(frame.Events, gc.HasLen, 1)
	c.Check(frame.Events[0].Type, gc.Equals, "Overheat")
	ack(c, conn)
}

func (s *ServerSuite) TestAbandonedSessionPurged(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")
	s.call(c, params.MethodEnableVariableValueChangedEvents, params.EnableVariableValueChangedEventsRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	}, nil)

	// Events queue with no socket attached. Once they have been pending
	// longer than the idle window, the sweep purges the session.
	s.hub.Publish(eventing.TopicVariableValues, variableEvent(ref,
		vtq.Make(vtq.FloatValue(1), vtq.TimestampFromMillis(1000), vtq.Good)))

	deadline := time.Now().Add(jujutesting.LongWait)
	for {
		status, _ := s.post(c, params.MethodGetModules, params.GetModulesRequest{Session: session})
		if status == http.StatusBadRequest {
			break
		}
		if time.Now().After(deadline) {
			c.Fatalf("session never purged")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *ServerSuite) TestDisableChangeEvents(c *gc.C) {
	session := s.login(c)
	ref := object.MakeVariableRef("IO", "Root", "X")
	s.call(c, params.MethodEnableVariableValueChangedEvents, params.EnableVariableValueChangedEventsRequest{
		Session:   session,
		Variables: []object.VariableRef{ref},
	}, nil)
	s.call(c, params.MethodDisableChangeEvents, params.DisableChangeEventsRequest{
		Session:                session,
		DisableVarValueChanges: true,
	}, nil)
	conn := s.dialEvents(c, session)

	s.hub.Publish(eventing.TopicVariableValues, variableEvent(ref,
		vtq.Make(vtq.FloatValue(1), vtq.TimestampFromMillis(1000), vtq.Good)))

	// Nothing may arrive; give the fan-out a moment to prove it.
	c.Assert(conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)), jc.ErrorIsNil)
	_, _, err := conn.ReadMessage()
	c.Check(err, gc.NotNil)
}

func (s *ServerSuite) TestSecondEventSocketRejected(c *gc.C) {
	session := s.login(c)
	_ = s.dialEvents(c, session)

	url := "ws://" + s.server.Addr().String() + "/mediator/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, jc.ErrorIsNil)
	defer conn.Close()
	c.Assert(conn.WriteMessage(websocket.TextMessage, []byte(session)), jc.ErrorIsNil)

	// The server closes the duplicate socket.
	c.Assert(conn.SetReadDeadline(time.Now().Add(jujutesting.LongWait)), jc.ErrorIsNil)
	_, _, err = conn.ReadMessage()
	c.Check(err, gc.NotNil)
}

func (s *ServerSuite) TestCallMethod(c *gc.C) {
	session := s.login(c)
	var res params.CallMethodResponse
	s.call(c, params.MethodCallMethod, params.CallMethodRequest{
		Session:    session,
		ModuleID:   "IO",
		MethodName: "reset",
	}, &res)
	c.Check(res.Result, gc.Equals, vtq.StringValue("IO.reset"))
}

func (s *ServerSuite) TestBrowse(c *gc.C) {
	session := s.login(c)
	var res params.BrowseResponse
	s.call(c, params.MethodBrowseObjectMemberValues, params.BrowseObjectMemberValuesRequest{
		Session: session,
		Member:  object.MemberRef{Object: object.MakeObjectRef("IO", "Root"), Name: "Mode"},
	}, &res)
	c.Check(res.Values, jc.DeepEquals, []string{"a", "b"})
}
