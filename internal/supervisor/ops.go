// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
	"github.com/d-pohl/Mediator.Net/rpc/params"
)

// asyncWriteTimeout bounds the module round trip of a fire-and-forget write.
const asyncWriteTimeout = 15 * time.Second

// The operations in this file serve the RPC surface. They are called from
// request handler goroutines and rely only on thread-safe module state:
// stores, snapshots and the instances' own serialisation.

func (s *Supervisor) moduleFor(id string) (*moduleState, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFoundf("module %q", id)
	}
	return m, nil
}

// runningInstance returns the module's instance if it is accepting calls.
func (s *Supervisor) runningInstance(id string) (module.Module, error) {
	m, err := s.moduleFor(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch m.State() {
	case StateInitComplete, StateRunning:
	default:
		return nil, errors.NewNotYetAvailable(nil, "module "+id+" is not running")
	}
	inst := m.Instance()
	if inst == nil {
		return nil, errors.NewNotYetAvailable(nil, "module "+id+" is not running")
	}
	return inst, nil
}

// ModuleInfos lists every hosted module with its lifecycle state.
func (s *Supervisor) ModuleInfos() []params.ModuleInfo {
	out := make([]params.ModuleInfo, len(s.modules))
	for i, m := range s.modules {
		m.mu.Lock()
		out[i] = params.ModuleInfo{
			ID:        m.cfg.ID,
			Name:      m.cfg.Name,
			Enabled:   m.cfg.IsEnabled(),
			State:     string(m.state),
			LastError: m.lastError,
		}
		m.mu.Unlock()
	}
	return out
}

// Locations lists the configured site hierarchy.
func (s *Supervisor) Locations() []object.Location {
	out := make([]object.Location, len(s.config.Mediator.Locations))
	for i, l := range s.config.Mediator.Locations {
		out[i] = object.Location{ID: l.ID, Name: l.Name, LongName: l.LongName, Parent: l.Parent}
	}
	return out
}

// MetaInfo returns one module's class metadata.
func (s *Supervisor) MetaInfo(moduleID string) (object.MetaInfo, error) {
	inst, err := s.runningInstance(moduleID)
	if err != nil {
		return object.MetaInfo{}, errors.Trace(err)
	}
	return inst.MetaInfo(), nil
}

// AllObjects lists one module's objects from the current snapshot.
func (s *Supervisor) AllObjects(moduleID string) ([]object.ObjectInfo, error) {
	m, err := s.moduleFor(moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return m.Snapshot().objects, nil
}

// ObjectsOfType lists one module's objects of the given class, optionally
// only those declaring variables.
func (s *Supervisor) ObjectsOfType(moduleID, className string, withVariables bool) ([]object.ObjectInfo, error) {
	all, err := s.AllObjects(moduleID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []object.ObjectInfo
	for _, info := range all {
		if info.ClassName != className {
			continue
		}
		if withVariables && len(info.Variables) == 0 {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// ObjectsByID resolves objects across modules, in input order.
func (s *Supervisor) ObjectsByID(refs []object.ObjectRef) ([]object.ObjectInfo, error) {
	out := make([]object.ObjectInfo, len(refs))
	for i, ref := range refs {
		m, err := s.moduleFor(ref.Module)
		if err != nil {
			return nil, errors.Trace(err)
		}
		info, ok := m.Snapshot().byRef[ref]
		if !ok {
			return nil, errors.NotFoundf("object %q", ref)
		}
		out[i] = info
	}
	return out, nil
}

// ObjectValuesByID reads whole-object configuration values, rendered as the
// JSON form of the object's current description.
func (s *Supervisor) ObjectValuesByID(refs []object.ObjectRef) ([]object.ObjectValue, error) {
	infos, err := s.ObjectsByID(refs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]object.ObjectValue, len(infos))
	for i, info := range infos {
		data, err := json.Marshal(info)
		if err != nil {
			return nil, errors.Annotatef(err, "encoding object %q", info.ID)
		}
		out[i] = object.ObjectValue{Object: info.ID, Value: vtq.Value(data)}
	}
	return out, nil
}

// ChildrenOfObjects lists the direct children of the given objects.
func (s *Supervisor) ChildrenOfObjects(refs []object.ObjectRef) ([]object.ObjectInfo, error) {
	var out []object.ObjectInfo
	for _, ref := range refs {
		m, err := s.moduleFor(ref.Module)
		if err != nil {
			return nil, errors.Trace(err)
		}
		snap := m.Snapshot()
		if _, ok := snap.byRef[ref]; !ok {
			return nil, errors.NotFoundf("object %q", ref)
		}
		for _, child := range snap.children[ref] {
			out = append(out, snap.byRef[child])
		}
	}
	return out, nil
}

// ParentOfObject resolves an object's parent; nil for a root.
func (s *Supervisor) ParentOfObject(ref object.ObjectRef) (*object.ObjectInfo, error) {
	m, err := s.moduleFor(ref.Module)
	if err != nil {
		return nil, errors.Trace(err)
	}
	snap := m.Snapshot()
	info, ok := snap.byRef[ref]
	if !ok {
		return nil, errors.NotFoundf("object %q", ref)
	}
	if info.Parent == nil {
		return nil, nil
	}
	parent, ok := snap.byRef[*info.Parent]
	if !ok {
		return nil, errors.NotFoundf("parent of object %q", ref)
	}
	return &parent, nil
}

// RootObject resolves a module's object tree root.
func (s *Supervisor) RootObject(moduleID string) (object.ObjectInfo, error) {
	m, err := s.moduleFor(moduleID)
	if err != nil {
		return object.ObjectInfo{}, errors.Trace(err)
	}
	snap := m.Snapshot()
	if snap.root == nil {
		return object.ObjectInfo{}, errors.NotFoundf("root object of module %q", moduleID)
	}
	return snap.byRef[*snap.root], nil
}

// ObjectAncestors returns ref and its ancestors up to the module root, or
// nil if the object is unknown. Used for tree-rooted event subscriptions.
func (s *Supervisor) ObjectAncestors(ref object.ObjectRef) []object.ObjectRef {
	m, ok := s.byID[ref.Module]
	if !ok {
		return nil
	}
	snap := m.Snapshot()
	var out []object.ObjectRef
	cur := ref
	for {
		info, ok := snap.byRef[cur]
		if !ok {
			return out
		}
		out = append(out, cur)
		if info.Parent == nil {
			return out
		}
		cur = *info.Parent
	}
}

// MemberValues reads configuration members across modules, in input order.
func (s *Supervisor) MemberValues(ctx context.Context, members []object.MemberRef) ([]object.MemberValue, error) {
	out := make([]object.MemberValue, len(members))
	grouped := make(map[string][]int)
	var order []string
	for i, member := range members {
		id := member.Object.Module
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], i)
	}
	for _, id := range order {
		inst, err := s.runningInstance(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		indices := grouped[id]
		refs := make([]object.MemberRef, len(indices))
		for j, i := range indices {
			refs[j] = members[i]
		}
		values, err := inst.MemberValues(ctx, refs)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(values) != len(refs) {
			return nil, errors.Errorf("module %q returned %d member values for %d members",
				id, len(values), len(refs))
		}
		for j, i := range indices {
			out[i] = values[j]
		}
	}
	return out, nil
}

// BrowseMember lists candidate values for one configuration member.
func (s *Supervisor) BrowseMember(ctx context.Context, member object.MemberRef) ([]string, error) {
	inst, err := s.runningInstance(member.Object.Module)
	if err != nil {
		return nil, errors.Trace(err)
	}
	values, err := inst.BrowseMember(ctx, member)
	return values, errors.Trace(err)
}

// ReadVariables reads current values from the stores. With ignoreMissing,
// unknown variables yield a Bad-quality empty value instead of failing the
// batch.
func (s *Supervisor) ReadVariables(refs []object.VariableRef, ignoreMissing bool) ([]vtq.VTQ, error) {
	out := make([]vtq.VTQ, len(refs))
	for i, ref := range refs {
		m, ok := s.byID[ref.Object.Module]
		if !ok {
			if ignoreMissing {
				out[i] = vtq.VTQ{Q: vtq.Bad}
				continue
			}
			return nil, errors.NotFoundf("module %q", ref.Object.Module)
		}
		v, err := m.store.Get(ref)
		if err != nil {
			if ignoreMissing && errors.Is(err, errors.NotFound) {
				out[i] = vtq.VTQ{Q: vtq.Bad}
				continue
			}
			return nil, errors.Trace(err)
		}
		out[i] = v
	}
	return out, nil
}

// ReadVariablesSync reads through the owning modules, bypassing the store,
// e.g. to poll a device on demand. The context bounds the round trip; on
// expiry the module call is not cancelled.
func (s *Supervisor) ReadVariablesSync(ctx context.Context, origin object.Origin, refs []object.VariableRef, ignoreMissing bool) ([]vtq.VTQ, error) {
	out := make([]vtq.VTQ, len(refs))
	grouped := make(map[string][]int)
	var order []string
	for i, ref := range refs {
		m, ok := s.byID[ref.Object.Module]
		if !ok || !s.variableDeclared(m, ref) {
			if ignoreMissing {
				out[i] = vtq.VTQ{Q: vtq.Bad}
				continue
			}
			return nil, errors.NotFoundf("variable %q", ref)
		}
		id := ref.Object.Module
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], i)
	}
	for _, id := range order {
		inst, err := s.runningInstance(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		indices := grouped[id]
		moduleRefs := make([]object.VariableRef, len(indices))
		for j, i := range indices {
			moduleRefs[j] = refs[i]
		}
		values, err := inst.ReadVariables(ctx, origin, moduleRefs)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(values) != len(moduleRefs) {
			return nil, errors.Errorf("module %q returned %d values for %d variables",
				id, len(values), len(moduleRefs))
		}
		for j, i := range indices {
			out[i] = values[j]
		}
	}
	return out, nil
}

func (s *Supervisor) variableDeclared(m *moduleState, ref object.VariableRef) bool {
	_, ok := m.Snapshot().variables[ref]
	return ok
}

// WriteVariables validates and forwards values to their owning modules
// without waiting for the outcome. The returned results carry only
// validation failures.
func (s *Supervisor) WriteVariables(origin object.Origin, values []object.VariableValue, ignoreMissing bool) ([]module.WriteResult, error) {
	var failed []module.WriteResult
	grouped := make(map[string][]object.VariableValue)
	var order []string
	for _, v := range values {
		m, ok := s.byID[v.Variable.Object.Module]
		if !ok || !s.variableDeclared(m, v.Variable) {
			if !ignoreMissing {
				return nil, errors.NotFoundf("variable %q", v.Variable)
			}
			failed = append(failed, module.WriteResult{
				Variable: v.Variable,
				Error:    "variable not found",
			})
			continue
		}
		id := v.Variable.Object.Module
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], v)
	}
	for _, id := range order {
		inst, err := s.runningInstance(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		batch := grouped[id]
		go func(id string, inst module.Module, batch []object.VariableValue) {
			ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
			defer cancel()
			results, err := inst.WriteVariables(ctx, origin, batch)
			if err != nil {
				logger.Warningf("module %q: async write of %d values failed: %v", id, len(batch), err)
				return
			}
			for _, r := range module.FailedResults(results) {
				logger.Warningf("module %q: write of %q failed: %s", id, r.Variable, r.Error)
			}
		}(id, inst, batch)
	}
	return failed, nil
}

// WriteVariablesSync forwards values to their owning modules and waits for
// the per-variable outcomes. On context expiry the caller gets a Timeout
// error, but the writes may still take effect.
func (s *Supervisor) WriteVariablesSync(ctx context.Context, origin object.Origin, values []object.VariableValue, ignoreMissing bool) ([]module.WriteResult, error) {
	var failed []module.WriteResult
	grouped := make(map[string][]object.VariableValue)
	var order []string
	for _, v := range values {
		m, ok := s.byID[v.Variable.Object.Module]
		if !ok || !s.variableDeclared(m, v.Variable) {
			if !ignoreMissing {
				return nil, errors.NotFoundf("variable %q", v.Variable)
			}
			failed = append(failed, module.WriteResult{
				Variable: v.Variable,
				Error:    "variable not found",
			})
			continue
		}
		id := v.Variable.Object.Module
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], v)
	}
	for _, id := range order {
		inst, err := s.runningInstance(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		results, err := inst.WriteVariables(ctx, origin, grouped[id])
		if err != nil {
			return nil, errors.Trace(err)
		}
		failed = append(failed, module.FailedResults(results)...)
	}
	return failed, nil
}

// ReadAllVariablesOfObjectTree reads the current values of every variable
// beneath root, including root's own.
func (s *Supervisor) ReadAllVariablesOfObjectTree(root object.ObjectRef) ([]object.VariableValue, error) {
	m, err := s.moduleFor(root.Module)
	if err != nil {
		return nil, errors.Trace(err)
	}
	snap := m.Snapshot()
	if _, ok := snap.byRef[root]; !ok {
		return nil, errors.NotFoundf("object %q", root)
	}
	var out []object.VariableValue
	for _, ref := range snap.subtree(root) {
		for _, varRef := range snap.byRef[ref].VariableRefs() {
			v, err := m.store.Get(varRef)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out = append(out, object.VariableValue{Variable: varRef, Value: v})
		}
	}
	return out, nil
}

// VariablesOfObjectTree lists the references of every variable beneath
// root, including root's own.
func (s *Supervisor) VariablesOfObjectTree(root object.ObjectRef) ([]object.VariableRef, error) {
	m, err := s.moduleFor(root.Module)
	if err != nil {
		return nil, errors.Trace(err)
	}
	snap := m.Snapshot()
	if _, ok := snap.byRef[root]; !ok {
		return nil, errors.NotFoundf("object %q", root)
	}
	var out []object.VariableRef
	for _, ref := range snap.subtree(root) {
		out = append(out, snap.byRef[ref].VariableRefs()...)
	}
	return out, nil
}

// UpdateConfig applies configuration changes, grouped per owning module in
// first-appearance order, failing fast on the first module error. There is
// no cross-module rollback.
func (s *Supervisor) UpdateConfig(ctx context.Context, origin object.Origin, req module.UpdateConfigRequest) ([]object.ObjectRef, error) {
	grouped := make(map[string]*module.UpdateConfigRequest)
	var order []string
	group := func(id string) *module.UpdateConfigRequest {
		g, ok := grouped[id]
		if !ok {
			g = &module.UpdateConfigRequest{}
			grouped[id] = g
			order = append(order, id)
		}
		return g
	}
	for _, ov := range req.UpdateOrDeleteObjects {
		g := group(ov.Object.Module)
		g.UpdateOrDeleteObjects = append(g.UpdateOrDeleteObjects, ov)
	}
	for _, mv := range req.UpdateOrDeleteMembers {
		g := group(mv.Member.Object.Module)
		g.UpdateOrDeleteMembers = append(g.UpdateOrDeleteMembers, mv)
	}
	for _, av := range req.AddArrayElements {
		g := group(av.Member.Object.Module)
		g.AddArrayElements = append(g.AddArrayElements, av)
	}
	var changed []object.ObjectRef
	for _, id := range order {
		m, err := s.moduleFor(id)
		if err != nil {
			return changed, errors.Trace(err)
		}
		inst, err := s.runningInstance(id)
		if err != nil {
			return changed, errors.Trace(err)
		}
		result, err := inst.UpdateConfig(ctx, origin, *grouped[id])
		if err != nil {
			return changed, errors.Trace(err)
		}
		changed = append(changed, result.ChangedObjects...)
		objects := result.ChangedObjects
		s.postNotification(func() {
			s.handleConfigChanged(m, objects)
		})
	}
	return changed, nil
}

// CallMethod invokes a module-defined method.
func (s *Supervisor) CallMethod(ctx context.Context, origin object.Origin, moduleID, method string, parameters []object.NamedValue) (vtq.Value, error) {
	inst, err := s.runningInstance(moduleID)
	if err != nil {
		return "", errors.Trace(err)
	}
	result, err := inst.CallMethod(ctx, origin, method, parameters)
	return result, errors.Trace(err)
}
