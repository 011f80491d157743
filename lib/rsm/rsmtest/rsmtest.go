// Package rsmtest provides reusable test doubles for exercising
// lib/rsm/group and lib/rsm/ttlmap without a real dragonboat cluster: a
// shared harness other packages (lib/rsm/dragonboat, rpc) can import
// instead of hand-rolling their own fakes the way
// group/statemachine_test.go does for its own in-package tests.
package rsmtest

import (
	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
)

// FakeSubstrate is a minimal rsm.Substrate driven directly by a test: it has
// no real log or clock, so Schedule just records its callback for the test
// to fire explicitly with RunScheduled rather than after any real delay.
type FakeSubstrate struct {
	Index     uint64
	scheduled []func()
}

func (s *FakeSubstrate) Context() rsm.Context { return rsm.Context{Index: s.Index} }

func (s *FakeSubstrate) Schedule(_ int64, fn func()) {
	s.scheduled = append(s.scheduled, fn)
}

// RunScheduled fires every callback queued by Schedule since the last call,
// in the order Schedule received them.
func (s *FakeSubstrate) RunScheduled() {
	fns := s.scheduled
	s.scheduled = nil
	for _, fn := range fns {
		fn()
	}
}

// Pending reports how many scheduled callbacks have not yet fired.
func (s *FakeSubstrate) Pending() int { return len(s.scheduled) }

// RecordingPublisher captures every event group.StateMachine delivers, for
// assertions in tests that exercise the machine through a public API (e.g.
// lib/rsm/dragonboat's adapter tests) rather than reaching into its
// unexported fields the way group/statemachine_test.go does.
type RecordingPublisher struct {
	Joins    []wire.MemberInfo
	Leaves   []string
	Terms    []uint64
	Elects   []string
	Resigns  []string
	Messages []group.MemberMessage
	Acks     []group.AckInfo
	Fails    []group.AckInfo
}

func (p *RecordingPublisher) Join(_ uint64, member wire.MemberInfo) {
	p.Joins = append(p.Joins, member)
}
func (p *RecordingPublisher) Leave(_ uint64, memberID string) {
	p.Leaves = append(p.Leaves, memberID)
}
func (p *RecordingPublisher) Term(_ uint64, term uint64) {
	p.Terms = append(p.Terms, term)
}
func (p *RecordingPublisher) Elect(_ uint64, memberID string) {
	p.Elects = append(p.Elects, memberID)
}
func (p *RecordingPublisher) Resign(_ uint64, memberID string) {
	p.Resigns = append(p.Resigns, memberID)
}
func (p *RecordingPublisher) Message(_ uint64, msg group.MemberMessage) {
	p.Messages = append(p.Messages, msg)
}
func (p *RecordingPublisher) Ack(_ uint64, ack group.AckInfo) {
	p.Acks = append(p.Acks, ack)
}
func (p *RecordingPublisher) Fail(_ uint64, fail group.AckInfo) {
	p.Fails = append(p.Fails, fail)
}
