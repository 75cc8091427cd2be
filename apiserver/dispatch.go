// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package apiserver

import (
	"context"
	"encoding"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/internal/historian"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// octetStream selects the binary codec for requests and responses.
const octetStream = "application/octet-stream"

// maxRequestBody bounds how much of a request body is read.
const maxRequestBody = 64 << 20

// decodeFunc unmarshals a request body into the typed request struct.
type decodeFunc func(into interface{}) error

// handlerFunc performs one method. A nil error pairs with the response
// value; handlers resolve their own session from the decoded request.
type handlerFunc func(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error)

// requestDef describes one entry of the static method table.
type requestDef struct {
	// duringStartup admits the method while module init is in progress;
	// everything else is answered 503 until startup completes.
	duringStartup bool
	handle        handlerFunc
}

// errMalformed marks an undecodable body. Per protocol it yields a bare 400
// without an error document.
var errMalformed = errors.New("malformed request body")

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get(":method")
	started := s.config.Clock.Now()
	outcome := "ok"
	defer func() {
		s.metrics.observe(method, outcome, s.config.Clock.Now().Sub(started))
	}()

	def, ok := requestDefs[method]
	if !ok {
		outcome = params.CodeBadRequest
		s.writeError(w, r, errors.NewBadRequest(nil, "unknown method "+method))
		return
	}
	if s.config.Core.Starting() && !def.duringStartup {
		outcome = params.CodeUnavailable
		s.writeError(w, r, errors.NewNotYetAvailable(nil, "mediator is starting"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		outcome = params.CodeBadRequest
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	binaryRequest := r.Header.Get("Content-Type") == octetStream
	decode := func(into interface{}) error {
		if binaryRequest {
			u, ok := into.(encoding.BinaryUnmarshaler)
			if !ok {
				return errors.NewBadRequest(nil, "method has no binary form")
			}
			if err := u.UnmarshalBinary(body); err != nil {
				return errMalformed
			}
			return nil
		}
		if err := json.Unmarshal(body, into); err != nil {
			return errMalformed
		}
		return nil
	}

	result, err := def.handle(s, r.Context(), decode)
	if err != nil {
		if errors.Cause(err) == errMalformed {
			outcome = params.CodeBadRequest
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		serverErr := params.ServerError(err)
		if code := serverErr.ErrorCode(); code != "" {
			outcome = code
		} else {
			outcome = "internal"
		}
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, r, result)
}

// writeResult encodes a successful response, mirroring the request's Accept
// header: binary for octet-stream where the type supports it, JSON otherwise.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result interface{}) {
	if result == nil {
		result = params.EmptyResponse{}
	}
	if r.Header.Get("Accept") == octetStream {
		if m, ok := result.(encoding.BinaryMarshaler); ok {
			data, err := m.MarshalBinary()
			if err != nil {
				s.writeError(w, r, errors.Trace(err))
				return
			}
			w.Header().Set("Content-Type", octetStream)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, r, errors.Trace(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeError encodes a failure as the JSON error document with the HTTP
// status implied by the error's kind. Errors are JSON regardless of Accept;
// internal details are logged, not leaked.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serverErr := params.ServerError(err)
	status := params.ErrorStatus(serverErr.ErrorCode())
	if status == http.StatusInternalServerError {
		logger.Errorf("request %q failed: %v", r.URL.Path, err)
		serverErr = &params.Error{Message: "internal server error"}
	}
	data, marshalErr := json.Marshal(serverErr)
	if marshalErr != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// syncContext derives the context bounding a sync read or write.
func syncContext(ctx context.Context, timeoutMS int64) (context.Context, context.CancelFunc) {
	timeout := defaultSyncTimeout
	if timeoutMS > 0 {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	return context.WithTimeout(ctx, timeout)
}

// requestDefs is the static method table. Only the login handshake may run
// while the mediator is starting.
var requestDefs = map[string]requestDef{
	params.MethodLogin:        {duringStartup: true, handle: handleLogin},
	params.MethodAuthenticate: {duringStartup: true, handle: handleAuthenticate},
	params.MethodLogout:       {duringStartup: true, handle: handleLogout},

	params.MethodGetLoginUser:                     {handle: handleGetLoginUser},
	params.MethodGetModules:                       {handle: handleGetModules},
	params.MethodGetLocations:                     {handle: handleGetLocations},
	params.MethodGetMetaInfos:                     {handle: handleGetMetaInfos},
	params.MethodGetAllObjects:                    {handle: handleGetAllObjects},
	params.MethodGetAllObjectsOfType:              {handle: handleGetAllObjectsOfType},
	params.MethodGetAllObjectsWithVariablesOfType: {handle: handleGetAllObjectsWithVariablesOfType},
	params.MethodGetObjectsByID:                   {handle: handleGetObjectsByID},
	params.MethodGetObjectValuesByID:              {handle: handleGetObjectValuesByID},
	params.MethodGetChildrenOfObjects:             {handle: handleGetChildrenOfObjects},
	params.MethodGetParentOfObject:                {handle: handleGetParentOfObject},
	params.MethodGetRootObject:                    {handle: handleGetRootObject},
	params.MethodGetMemberValues:                  {handle: handleGetMemberValues},
	params.MethodBrowseObjectMemberValues:         {handle: handleBrowseObjectMemberValues},

	params.MethodReadVariables:                   {handle: readVariablesHandler(false, false)},
	params.MethodReadVariablesIgnoreMissing:      {handle: readVariablesHandler(false, true)},
	params.MethodReadVariablesSync:               {handle: readVariablesHandler(true, false)},
	params.MethodReadVariablesSyncIgnoreMissing:  {handle: readVariablesHandler(true, true)},
	params.MethodWriteVariables:                  {handle: writeVariablesHandler(false, false)},
	params.MethodWriteVariablesIgnoreMissing:     {handle: writeVariablesHandler(false, true)},
	params.MethodWriteVariablesSync:              {handle: writeVariablesHandler(true, false)},
	params.MethodWriteVariablesSyncIgnoreMissing: {handle: writeVariablesHandler(true, true)},
	params.MethodReadAllVariablesOfObjectTree:    {handle: handleReadAllVariablesOfObjectTree},

	params.MethodHistorianReadRaw:                        {handle: handleHistorianReadRaw},
	params.MethodHistorianCount:                          {handle: handleHistorianCount},
	params.MethodHistorianModify:                         {handle: handleHistorianModify},
	params.MethodHistorianDeleteInterval:                 {handle: handleHistorianDeleteInterval},
	params.MethodHistorianDeleteVariables:                {handle: handleHistorianDeleteVariables},
	params.MethodHistorianDeleteAllVariablesOfObjectTree: {handle: handleHistorianDeleteTree},
	params.MethodHistorianGetLatestTimestampDB:           {handle: handleHistorianLatestTimestampDB},

	params.MethodUpdateConfig: {handle: handleUpdateConfig},
	params.MethodCallMethod:   {handle: handleCallMethod},

	params.MethodEnableVariableValueChangedEvents:   {handle: handleEnableVarValueEvents},
	params.MethodEnableVariableHistoryChangedEvents: {handle: handleEnableVarHistoryEvents},
	params.MethodEnableConfigChangedEvents:          {handle: handleEnableConfigChangedEvents},
	params.MethodEnableAlarmsAndEvents:              {handle: handleEnableAlarmsAndEvents},
	params.MethodDisableChangeEvents:                {handle: handleDisableChangeEvents},
	params.MethodDisableAlarmsAndEvents:             {handle: handleDisableAlarmsAndEvents},
}

func handleGetLoginUser(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetLoginUserRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.LoginUserResponse{
		Login:    sess.login,
		Roles:    sess.roles,
		IsModule: sess.isModule,
	}, nil
}

func handleGetModules(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetModulesRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	return s.config.Core.ModuleInfos(), nil
}

func handleGetLocations(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetLocationsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	return s.config.Core.Locations(), nil
}

func handleGetMetaInfos(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetMetaInfosRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	info, err := s.config.Core.MetaInfo(req.ModuleID)
	return info, errors.Trace(err)
}

func handleGetAllObjects(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetAllObjectsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	infos, err := s.config.Core.AllObjects(req.ModuleID)
	return infos, errors.Trace(err)
}

func handleGetAllObjectsOfType(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetAllObjectsOfTypeRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	infos, err := s.config.Core.ObjectsOfType(req.ModuleID, req.ClassName, false)
	return infos, errors.Trace(err)
}

func handleGetAllObjectsWithVariablesOfType(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetAllObjectsWithVariablesOfTypeRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	infos, err := s.config.Core.ObjectsOfType(req.ModuleID, req.ClassName, true)
	return infos, errors.Trace(err)
}

func handleGetObjectsByID(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetObjectsByIDRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	infos, err := s.config.Core.ObjectsByID(req.ObjectIDs)
	return infos, errors.Trace(err)
}

func handleGetObjectValuesByID(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetObjectValuesByIDRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	values, err := s.config.Core.ObjectValuesByID(req.ObjectIDs)
	return values, errors.Trace(err)
}

func handleGetChildrenOfObjects(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetChildrenOfObjectsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	infos, err := s.config.Core.ChildrenOfObjects(req.ObjectIDs)
	return infos, errors.Trace(err)
}

func handleGetParentOfObject(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetParentOfObjectRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	info, err := s.config.Core.ParentOfObject(req.ObjectID)
	return info, errors.Trace(err)
}

func handleGetRootObject(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetRootObjectRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	info, err := s.config.Core.RootObject(req.ModuleID)
	return info, errors.Trace(err)
}

func handleGetMemberValues(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.GetMemberValuesRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	values, err := s.config.Core.MemberValues(ctx, req.Members)
	return values, errors.Trace(err)
}

func handleBrowseObjectMemberValues(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.BrowseObjectMemberValuesRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	values, err := s.config.Core.BrowseMember(ctx, req.Member)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.BrowseResponse{Values: values}, nil
}

func readVariablesHandler(sync, ignoreMissing bool) handlerFunc {
	return func(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
		var req params.ReadVariablesRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.session(req.Session)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !sync {
			values, err := s.config.Core.ReadVariables(req.Variables, ignoreMissing)
			return params.VTQList(values), errors.Trace(err)
		}
		opCtx, cancel := syncContext(ctx, req.TimeoutMS)
		defer cancel()
		values, err := s.config.Core.ReadVariablesSync(opCtx, sess.origin(), req.Variables, ignoreMissing)
		return params.VTQList(values), errors.Trace(err)
	}
}

func writeVariablesHandler(sync, ignoreMissing bool) handlerFunc {
	return func(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
		var req params.WriteVariablesRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.session(req.Session)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !sync {
			failed, err := s.config.Core.WriteVariables(sess.origin(), req.Values, ignoreMissing)
			return params.WriteVariablesResponse{Failed: failed}, errors.Trace(err)
		}
		opCtx, cancel := syncContext(ctx, req.TimeoutMS)
		defer cancel()
		failed, err := s.config.Core.WriteVariablesSync(opCtx, sess.origin(), req.Values, ignoreMissing)
		return params.WriteVariablesResponse{Failed: failed}, errors.Trace(err)
	}
}

func handleReadAllVariablesOfObjectTree(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.ReadAllVariablesOfObjectTreeRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	values, err := s.config.Core.ReadAllVariablesOfObjectTree(req.ObjectID)
	return params.VariableValueList(values), errors.Trace(err)
}

func handleHistorianReadRaw(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianReadRawRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	values, err := s.config.History.ReadRaw(ctx, historian.ReadRawRequest{
		Variable:  req.Variable,
		Start:     req.StartInclusive,
		End:       req.EndInclusive,
		MaxValues: req.MaxValues,
		Bounding:  req.Bounding,
		Filter:    req.Filter,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if values == nil {
		values = []vtq.VTTQ{}
	}
	return values, nil
}

func handleHistorianCount(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianCountRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	count, err := s.config.History.Count(ctx, req.Variable, req.StartInclusive, req.EndInclusive, req.Filter)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.CountResponse{Count: count}, nil
}

func handleHistorianModify(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianModifyRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	if err := s.config.History.Modify(ctx, req.Variable, req.Mode, req.Data); err != nil {
		return nil, errors.Trace(err)
	}
	return params.EmptyResponse{}, nil
}

func handleHistorianDeleteInterval(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianDeleteIntervalRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	deleted, err := s.config.History.DeleteInterval(ctx, req.Variable, req.StartInclusive, req.EndInclusive)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.DeletedResponse{Deleted: deleted}, nil
}

func handleHistorianDeleteVariables(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianDeleteVariablesRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	deleted, err := s.config.History.DeleteVariables(ctx, req.Variables)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.DeletedResponse{Deleted: deleted}, nil
}

func handleHistorianDeleteTree(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianDeleteAllVariablesOfObjectTreeRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	vars, err := s.config.Core.VariablesOfObjectTree(req.ObjectID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	deleted, err := s.config.History.DeleteVariables(ctx, vars)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.DeletedResponse{Deleted: deleted}, nil
}

func handleHistorianLatestTimestampDB(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.HistorianGetLatestTimestampDBRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	if _, err := s.session(req.Session); err != nil {
		return nil, errors.Trace(err)
	}
	t, err := s.config.History.LatestTimestampDB(ctx, req.Variable, req.StartInclusive, req.EndInclusive)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.TimestampResponse{T: t}, nil
}

func handleUpdateConfig(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.UpdateConfigRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	changed, err := s.config.Core.UpdateConfig(ctx, sess.origin(), module.UpdateConfigRequest{
		UpdateOrDeleteObjects: req.UpdateOrDeleteObjects,
		UpdateOrDeleteMembers: req.UpdateOrDeleteMembers,
		AddArrayElements:      req.AddArrayElements,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.UpdateConfigResponse{ChangedObjects: changed}, nil
}

func handleCallMethod(s *Server, ctx context.Context, decode decodeFunc) (interface{}, error) {
	var req params.CallMethodRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result, err := s.config.Core.CallMethod(ctx, sess.origin(), req.ModuleID, req.MethodName, req.Parameters)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return params.CallMethodResponse{Result: result}, nil
}

func handleEnableVarValueEvents(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.EnableVariableValueChangedEventsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess.enableVarValues(req.Options, req.Variables, req.TreeRoots)
	return params.EmptyResponse{}, nil
}

func handleEnableVarHistoryEvents(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.EnableVariableHistoryChangedEventsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess.enableVarHistory(req.Variables, req.TreeRoots)
	return params.EmptyResponse{}, nil
}

func handleEnableConfigChangedEvents(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.EnableConfigChangedEventsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess.enableConfigChanges(req.Objects)
	return params.EmptyResponse{}, nil
}

func handleEnableAlarmsAndEvents(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.EnableAlarmsAndEventsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess.enableAlarms(req.MinSeverity)
	return params.EmptyResponse{}, nil
}

func handleDisableChangeEvents(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.DisableChangeEventsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess.disableChangeEvents(req.DisableVarValueChanges, req.DisableVarHistoryChanges, req.DisableConfigChanges)
	return params.EmptyResponse{}, nil
}

func handleDisableAlarmsAndEvents(s *Server, _ context.Context, decode decodeFunc) (interface{}, error) {
	var req params.DisableAlarmsAndEventsRequest
	if err := decode(&req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.Session)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sess.disableAlarms()
	return params.EmptyResponse{}, nil
}

// origin identifies the session as the initiator of writes and changes.
func (s *session) origin() object.Origin {
	kind := object.OriginUser
	if s.isModule {
		kind = object.OriginModule
	}
	return object.Origin{Kind: kind, ID: s.login}
}
