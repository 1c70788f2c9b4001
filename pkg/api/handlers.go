package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/psaab/pktclass/pkg/rules"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

// statusForKind maps structured rule errors to HTTP statuses.
func statusForKind(err error) int {
	switch rules.KindOf(err) {
	case rules.KindNotFound:
		return http.StatusNotFound
	case rules.KindDuplicateID, rules.KindConflict:
		return http.StatusConflict
	case rules.KindInvalidRule:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, StatusResponse{
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		RuleCount: s.engine.Len(),
	})
}

func (s *Server) listRulesHandler(w http.ResponseWriter, _ *http.Request) {
	all := s.engine.Rules()
	out := make([]RuleInfo, 0, len(all))
	for _, r := range all {
		out = append(out, ruleInfo(r, s.engine.RuleStatistics(r.ID)))
	}
	writeOK(w, out)
}

func (s *Server) getRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, found := s.engine.Rule(id)
	if !found {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	writeOK(w, ruleInfo(rule, s.engine.RuleStatistics(id)))
}

func (s *Server) addRuleHandler(w http.ResponseWriter, r *http.Request) {
	var info RuleInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	rule, err := ruleFromInfo(info)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Add(rule); err != nil {
		writeError(w, statusForKind(err), err.Error())
		return
	}
	writeOK(w, ruleInfo(rule, 0))
}

func (s *Server) modifyRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var info RuleInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	rule, err := ruleFromInfo(info)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Modify(id, rule); err != nil {
		writeError(w, statusForKind(err), err.Error())
		return
	}
	writeOK(w, nil)
}

func (s *Server) deleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Delete(id); err != nil {
		writeError(w, statusForKind(err), err.Error())
		return
	}
	writeOK(w, nil)
}

func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h, err := headerFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w, classifyResponse(s.engine.Classify(h)))
}

func (s *Server) classifyBatchHandler(w http.ResponseWriter, r *http.Request) {
	var reqs []ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	headers := make([]rules.PacketHeader, len(reqs))
	for i, req := range reqs {
		h, err := headerFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		headers[i] = h
	}
	results := s.engine.ClassifyBatch(headers)
	out := make([]ClassifyResponse, len(results))
	for i, res := range results {
		out[i] = classifyResponse(res)
	}
	writeOK(w, out)
}

func (s *Server) statisticsHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, StatisticsResponse{Rules: s.engine.Statistics()})
}

func (s *Server) ruleStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	writeOK(w, map[string]uint64{"match_count": s.engine.RuleStatistics(id)})
}

func (s *Server) resetStatisticsHandler(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetStatistics()
	writeOK(w, nil)
}

func (s *Server) resetRuleStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.engine.ResetRuleStatistics(id)
	writeOK(w, nil)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return 0, false
	}
	return uint32(id), true
}

func ruleInfo(r rules.Rule, matches uint64) RuleInfo {
	info := RuleInfo{
		ID:          r.ID,
		Priority:    r.Priority,
		Enabled:     r.Enabled,
		SrcPortLow:  r.Filter.SrcPorts.Lo,
		SrcPortHigh: r.Filter.SrcPorts.Hi,
		DstPortLow:  r.Filter.DstPorts.Lo,
		DstPortHigh: r.Filter.DstPorts.Hi,
		Protocol:    r.Filter.Protocol,
		Action:      actionInfo(r.Actions),
		MatchCount:  matches,
	}
	if r.Filter.SrcPrefix != nil {
		info.SrcPrefix = r.Filter.SrcPrefix.String()
	}
	if r.Filter.DstPrefix != nil {
		info.DstPrefix = r.Filter.DstPrefix.String()
	}
	return info
}

func ruleFromInfo(info RuleInfo) (rules.Rule, error) {
	rc := rules.Rule{
		ID:       info.ID,
		Priority: info.Priority,
		Enabled:  info.Enabled,
	}
	if info.SrcPrefix != "" {
		p, err := rules.ParsePrefix(info.SrcPrefix)
		if err != nil {
			return rules.Rule{}, err
		}
		rc.Filter.SrcPrefix = &p
	}
	if info.DstPrefix != "" {
		p, err := rules.ParsePrefix(info.DstPrefix)
		if err != nil {
			return rules.Rule{}, err
		}
		rc.Filter.DstPrefix = &p
	}
	rc.Filter.SrcPorts = rules.PortRange{Lo: info.SrcPortLow, Hi: info.SrcPortHigh}
	rc.Filter.DstPorts = rules.PortRange{Lo: info.DstPortLow, Hi: info.DstPortHigh}
	rc.Filter.Protocol = info.Protocol

	switch info.Action.Type {
	case "forward":
		rc.Actions = rules.ActionList{Primary: rules.ActionForward, NextHop: info.Action.NextHop}
	case "drop", "":
		rc.Actions = rules.ActionList{Primary: rules.ActionDrop}
	case "log":
		rc.Actions = rules.ActionList{Primary: rules.ActionLog, LogID: info.Action.LogID}
	case "mirror":
		rc.Actions = rules.ActionList{Primary: rules.ActionMirror, MirrorDest: info.Action.MirrorDest}
	default:
		return rules.Rule{}, &rules.Error{Kind: rules.KindInvalidRule,
			Msg: "unknown action type " + info.Action.Type}
	}
	return rc, nil
}

func actionInfo(a rules.ActionList) ActionInfo {
	info := ActionInfo{Type: a.Primary.String()}
	switch a.Primary {
	case rules.ActionForward:
		info.NextHop = a.NextHop
	case rules.ActionLog:
		info.LogID = a.LogID
	case rules.ActionMirror:
		info.MirrorDest = a.MirrorDest
	}
	return info
}

func headerFromRequest(req ClassifyRequest) (rules.PacketHeader, error) {
	src, err := rules.ParseIPv4(req.SrcIP)
	if err != nil {
		return rules.PacketHeader{}, err
	}
	dst, err := rules.ParseIPv4(req.DstIP)
	if err != nil {
		return rules.PacketHeader{}, err
	}
	return rules.PacketHeader{
		SrcIP:    src,
		DstIP:    dst,
		SrcPort:  req.SrcPort,
		DstPort:  req.DstPort,
		Protocol: req.Protocol,
	}, nil
}

func classifyResponse(res rules.ClassificationResult) ClassifyResponse {
	out := ClassifyResponse{Matched: res.Matched}
	if res.Matched {
		out.RuleID = res.RuleID
		a := actionInfo(res.Actions)
		out.Action = &a
	}
	return out
}
