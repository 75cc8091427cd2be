// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package params holds the wire types of the mediator's client protocol:
// one request/response pair per method, the event frames pushed over the
// session websocket, the error form, and a binary codec for the hot-path
// frames.
package params

import (
	"github.com/d-pohl/Mediator.Net/core/eventing"
	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// Method names, as they appear in the request URL /mediator/<Method>.
const (
	MethodLogin        = "Login"
	MethodAuthenticate = "Authenticate"
	MethodLogout       = "Logout"

	MethodGetLoginUser                     = "GetLoginUser"
	MethodGetModules                       = "GetModules"
	MethodGetLocations                     = "GetLocations"
	MethodGetMetaInfos                     = "GetMetaInfos"
	MethodGetAllObjects                    = "GetAllObjects"
	MethodGetAllObjectsOfType              = "GetAllObjectsOfType"
	MethodGetAllObjectsWithVariablesOfType = "GetAllObjectsWithVariablesOfType"
	MethodGetObjectsByID                   = "GetObjectsByID"
	MethodGetObjectValuesByID              = "GetObjectValuesByID"
	MethodGetChildrenOfObjects             = "GetChildrenOfObjects"
	MethodGetParentOfObject                = "GetParentOfObject"
	MethodGetRootObject                    = "GetRootObject"
	MethodGetMemberValues                  = "GetMemberValues"
	MethodBrowseObjectMemberValues         = "BrowseObjectMemberValues"

	MethodReadVariables                   = "ReadVariables"
	MethodReadVariablesIgnoreMissing      = "ReadVariablesIgnoreMissing"
	MethodReadVariablesSync               = "ReadVariablesSync"
	MethodReadVariablesSyncIgnoreMissing  = "ReadVariablesSyncIgnoreMissing"
	MethodWriteVariables                  = "WriteVariables"
	MethodWriteVariablesIgnoreMissing     = "WriteVariablesIgnoreMissing"
	MethodWriteVariablesSync              = "WriteVariablesSync"
	MethodWriteVariablesSyncIgnoreMissing = "WriteVariablesSyncIgnoreMissing"
	MethodReadAllVariablesOfObjectTree    = "ReadAllVariablesOfObjectTree"

	MethodHistorianReadRaw                        = "HistorianReadRaw"
	MethodHistorianCount                          = "HistorianCount"
	MethodHistorianModify                         = "HistorianModify"
	MethodHistorianDeleteInterval                 = "HistorianDeleteInterval"
	MethodHistorianDeleteVariables                = "HistorianDeleteVariables"
	MethodHistorianDeleteAllVariablesOfObjectTree = "HistorianDeleteAllVariablesOfObjectTree"
	MethodHistorianGetLatestTimestampDB           = "HistorianGetLatestTimestampDB"

	MethodUpdateConfig = "UpdateConfig"
	MethodCallMethod   = "CallMethod"

	MethodEnableVariableValueChangedEvents   = "EnableVariableValueChangedEvents"
	MethodEnableVariableHistoryChangedEvents = "EnableVariableHistoryChangedEvents"
	MethodEnableConfigChangedEvents          = "EnableConfigChangedEvents"
	MethodEnableAlarmsAndEvents              = "EnableAlarmsAndEvents"
	MethodDisableChangeEvents                = "DisableChangeEvents"
	MethodDisableAlarmsAndEvents             = "DisableAlarmsAndEvents"
)

// LoginRequest opens the login handshake. Exactly one of Login (a user
// account) or ModuleID (module loopback access) is set.
type LoginRequest struct {
	Login    string `json:"Login,omitempty"`
	ModuleID string `json:"ModuleID,omitempty"`
}

// LoginResponse carries the challenge the client must answer.
type LoginResponse struct {
	Session   string `json:"Session"`
	Challenge string `json:"Challenge"`
}

// AuthenticateRequest answers the login challenge.
type AuthenticateRequest struct {
	Session string `json:"Session"`
	Hash    string `json:"Hash"`
}

// AuthenticateResponse confirms the session.
type AuthenticateResponse struct {
	Session string   `json:"Session"`
	User    string   `json:"User"`
	Roles   []string `json:"Roles,omitempty"`
}

// LogoutRequest closes a session.
type LogoutRequest struct {
	Session string `json:"Session"`
}

// GetLoginUserRequest asks for the session's account info.
type GetLoginUserRequest struct {
	Session string `json:"Session"`
}

// LoginUserResponse describes the session's account.
type LoginUserResponse struct {
	Login    string   `json:"Login"`
	Roles    []string `json:"Roles,omitempty"`
	IsModule bool     `json:"IsModule,omitempty"`
}

// GetModulesRequest lists the hosted modules.
type GetModulesRequest struct {
	Session string `json:"Session"`
}

// ModuleInfo is one entry of the GetModules response.
type ModuleInfo struct {
	ID        string `json:"ID"`
	Name      string `json:"Name"`
	Enabled   bool   `json:"Enabled"`
	State     string `json:"State"`
	LastError string `json:"LastError,omitempty"`
}

// GetLocationsRequest lists the configured site hierarchy.
type GetLocationsRequest struct {
	Session string `json:"Session"`
}

// GetMetaInfosRequest asks one module for its class metadata.
type GetMetaInfosRequest struct {
	Session  string `json:"Session"`
	ModuleID string `json:"ModuleID"`
}

// GetAllObjectsRequest lists all objects of one module.
type GetAllObjectsRequest struct {
	Session  string `json:"Session"`
	ModuleID string `json:"ModuleID"`
}

// GetAllObjectsOfTypeRequest lists a module's objects of one class.
type GetAllObjectsOfTypeRequest struct {
	Session   string `json:"Session"`
	ModuleID  string `json:"ModuleID"`
	ClassName string `json:"ClassName"`
}

// GetAllObjectsWithVariablesOfTypeRequest lists a module's objects of one
// class that declare at least one variable.
type GetAllObjectsWithVariablesOfTypeRequest struct {
	Session   string `json:"Session"`
	ModuleID  string `json:"ModuleID"`
	ClassName string `json:"ClassName"`
}

// GetObjectsByIDRequest resolves objects across modules.
type GetObjectsByIDRequest struct {
	Session   string             `json:"Session"`
	ObjectIDs []object.ObjectRef `json:"ObjectIDs"`
}

// GetObjectValuesByIDRequest reads whole-object configuration values.
type GetObjectValuesByIDRequest struct {
	Session   string             `json:"Session"`
	ObjectIDs []object.ObjectRef `json:"ObjectIDs"`
}

// GetChildrenOfObjectsRequest lists the direct children of objects.
type GetChildrenOfObjectsRequest struct {
	Session   string             `json:"Session"`
	ObjectIDs []object.ObjectRef `json:"ObjectIDs"`
}

// GetParentOfObjectRequest resolves an object's parent.
type GetParentOfObjectRequest struct {
	Session  string           `json:"Session"`
	ObjectID object.ObjectRef `json:"ObjectID"`
}

// GetRootObjectRequest resolves a module's tree root.
type GetRootObjectRequest struct {
	Session  string `json:"Session"`
	ModuleID string `json:"ModuleID"`
}

// GetMemberValuesRequest reads individual configuration members.
type GetMemberValuesRequest struct {
	Session string             `json:"Session"`
	Members []object.MemberRef `json:"Members"`
}

// BrowseObjectMemberValuesRequest lists candidate values for a member.
type BrowseObjectMemberValuesRequest struct {
	Session string           `json:"Session"`
	Member  object.MemberRef `json:"Member"`
}

// BrowseResponse carries browse results.
type BrowseResponse struct {
	Values []string `json:"Values,omitempty"`
}

// ReadVariablesRequest reads current values from the store. The Sync
// variants read through the owning module instead; TimeoutMS bounds that
// round trip (0 means the server default).
type ReadVariablesRequest struct {
	Session   string               `json:"Session"`
	Variables []object.VariableRef `json:"Variables"`
	TimeoutMS int64                `json:"TimeoutMS,omitempty"`
}

// WriteVariablesRequest sends values towards the owning modules. The Sync
// variants wait for the module's write results; TimeoutMS bounds that wait
// (0 means the server default).
type WriteVariablesRequest struct {
	Session   string                 `json:"Session"`
	Values    []object.VariableValue `json:"Values"`
	TimeoutMS int64                  `json:"TimeoutMS,omitempty"`
}

// WriteVariablesResponse lists per-variable failures; an empty list means
// every write was accepted (async) or succeeded (sync).
type WriteVariablesResponse struct {
	Failed []module.WriteResult `json:"Failed,omitempty"`
}

// ReadAllVariablesOfObjectTreeRequest reads the current values of every
// variable beneath an object, including the object itself.
type ReadAllVariablesOfObjectTreeRequest struct {
	Session  string           `json:"Session"`
	ObjectID object.ObjectRef `json:"ObjectID"`
}

// HistorianReadRawRequest reads stored values of one variable in a closed
// time interval.
type HistorianReadRawRequest struct {
	Session        string             `json:"Session"`
	Variable       object.VariableRef `json:"Variable"`
	StartInclusive vtq.Timestamp      `json:"StartInclusive"`
	EndInclusive   vtq.Timestamp      `json:"EndInclusive"`
	MaxValues      int                `json:"MaxValues"`
	Bounding       BoundingMethod     `json:"Bounding"`
	Filter         QualityFilter      `json:"Filter,omitempty"`
}

// BoundingMethod selects which samples survive when an interval holds more
// than MaxValues.
type BoundingMethod string

const (
	TakeFirstN  BoundingMethod = "TakeFirstN"
	TakeLastN   BoundingMethod = "TakeLastN"
	CompressToN BoundingMethod = "CompressToN"
)

// QualityFilter restricts reads and counts by quality grade.
type QualityFilter string

const (
	FilterNone           QualityFilter = ""
	FilterExcludeBad     QualityFilter = "ExcludeBad"
	FilterExcludeNonGood QualityFilter = "ExcludeNonGood"
)

// HistorianCountRequest counts stored values in a closed interval.
type HistorianCountRequest struct {
	Session        string             `json:"Session"`
	Variable       object.VariableRef `json:"Variable"`
	StartInclusive vtq.Timestamp      `json:"StartInclusive"`
	EndInclusive   vtq.Timestamp      `json:"EndInclusive"`
	Filter         QualityFilter      `json:"Filter,omitempty"`
}

// CountResponse carries a count.
type CountResponse struct {
	Count int64 `json:"Count"`
}

// ModifyMode selects the write discipline of HistorianModify.
type ModifyMode string

const (
	ModifyInsert     ModifyMode = "Insert"
	ModifyUpdate     ModifyMode = "Update"
	ModifyUpsert     ModifyMode = "Upsert"
	ModifyReplaceAll ModifyMode = "ReplaceAll"
	ModifyDelete     ModifyMode = "Delete"
)

// HistorianModifyRequest edits stored values of one variable.
type HistorianModifyRequest struct {
	Session  string             `json:"Session"`
	Variable object.VariableRef `json:"Variable"`
	Mode     ModifyMode         `json:"Mode"`
	Data     []vtq.VTQ          `json:"Data"`
}

// HistorianDeleteIntervalRequest deletes stored values in a closed interval.
type HistorianDeleteIntervalRequest struct {
	Session        string             `json:"Session"`
	Variable       object.VariableRef `json:"Variable"`
	StartInclusive vtq.Timestamp      `json:"StartInclusive"`
	EndInclusive   vtq.Timestamp      `json:"EndInclusive"`
}

// DeletedResponse carries the number of deleted rows.
type DeletedResponse struct {
	Deleted int64 `json:"Deleted"`
}

// HistorianDeleteVariablesRequest drops whole history channels.
type HistorianDeleteVariablesRequest struct {
	Session   string               `json:"Session"`
	Variables []object.VariableRef `json:"Variables"`
}

// HistorianDeleteAllVariablesOfObjectTreeRequest drops the channels of every
// variable beneath an object.
type HistorianDeleteAllVariablesOfObjectTreeRequest struct {
	Session  string           `json:"Session"`
	ObjectID object.ObjectRef `json:"ObjectID"`
}

// HistorianGetLatestTimestampDBRequest finds the latest stored timestamp of
// a variable within a closed interval.
type HistorianGetLatestTimestampDBRequest struct {
	Session        string             `json:"Session"`
	Variable       object.VariableRef `json:"Variable"`
	StartInclusive vtq.Timestamp      `json:"StartInclusive"`
	EndInclusive   vtq.Timestamp      `json:"EndInclusive"`
}

// TimestampResponse carries a single timestamp, Empty when none exists.
type TimestampResponse struct {
	T vtq.Timestamp `json:"T"`
}

// UpdateConfigRequest applies configuration changes. Entries with empty
// values denote deletion.
type UpdateConfigRequest struct {
	Session               string                   `json:"Session"`
	UpdateOrDeleteObjects []object.ObjectValue     `json:"UpdateOrDeleteObjects,omitempty"`
	UpdateOrDeleteMembers []object.MemberValue     `json:"UpdateOrDeleteMembers,omitempty"`
	AddArrayElements      []object.AddArrayElement `json:"AddArrayElements,omitempty"`
}

// UpdateConfigResponse lists the objects the update changed.
type UpdateConfigResponse struct {
	ChangedObjects []object.ObjectRef `json:"ChangedObjects,omitempty"`
}

// CallMethodRequest invokes a module-defined method.
type CallMethodRequest struct {
	Session    string              `json:"Session"`
	ModuleID   string              `json:"ModuleID"`
	MethodName string              `json:"MethodName"`
	Parameters []object.NamedValue `json:"Parameters,omitempty"`
}

// CallMethodResponse carries the method result.
type CallMethodResponse struct {
	Result vtq.Value `json:"Result"`
}

// SubscriptionOptions tunes variable-value event delivery.
type SubscriptionOptions struct {
	// Coalesce keeps only the newest pending value per variable while
	// the session's socket is busy. Defaults to true.
	Coalesce *bool `json:"Coalesce,omitempty"`
	// SendValueWithEvent includes the values in the event frame.
	// Defaults to true; disabled, the frame carries references only.
	SendValueWithEvent *bool `json:"SendValueWithEvent,omitempty"`
}

// CoalesceEnabled resolves the default.
func (o SubscriptionOptions) CoalesceEnabled() bool {
	return o.Coalesce == nil || *o.Coalesce
}

// SendValues resolves the default.
func (o SubscriptionOptions) SendValues() bool {
	return o.SendValueWithEvent == nil || *o.SendValueWithEvent
}

// EnableVariableValueChangedEventsRequest subscribes the session to value
// updates of the named variables and of every variable beneath the named
// tree roots.
type EnableVariableValueChangedEventsRequest struct {
	Session   string               `json:"Session"`
	Options   SubscriptionOptions  `json:"Options"`
	Variables []object.VariableRef `json:"Variables,omitempty"`
	TreeRoots []object.ObjectRef   `json:"TreeRoots,omitempty"`
}

// EnableVariableHistoryChangedEventsRequest subscribes to history changes.
type EnableVariableHistoryChangedEventsRequest struct {
	Session   string               `json:"Session"`
	Variables []object.VariableRef `json:"Variables,omitempty"`
	TreeRoots []object.ObjectRef   `json:"TreeRoots,omitempty"`
}

// EnableConfigChangedEventsRequest subscribes to config changes of the named
// objects (and their descendants).
type EnableConfigChangedEventsRequest struct {
	Session string             `json:"Session"`
	Objects []object.ObjectRef `json:"Objects"`
}

// EnableAlarmsAndEventsRequest subscribes to alarms and events of at least
// the given severity.
type EnableAlarmsAndEventsRequest struct {
	Session     string            `json:"Session"`
	MinSeverity eventing.Severity `json:"MinSeverity,omitempty"`
}

// DisableChangeEventsRequest withdraws change subscriptions.
type DisableChangeEventsRequest struct {
	Session                  string `json:"Session"`
	DisableVarValueChanges   bool   `json:"DisableVarValueChanges"`
	DisableVarHistoryChanges bool   `json:"DisableVarHistoryChanges"`
	DisableConfigChanges     bool   `json:"DisableConfigChanges"`
}

// DisableAlarmsAndEventsRequest withdraws the alarm/event subscription.
type DisableAlarmsAndEventsRequest struct {
	Session string `json:"Session"`
}

// EmptyResponse is the response of methods that return nothing.
type EmptyResponse struct{}
