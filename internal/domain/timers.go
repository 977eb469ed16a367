package domain

import "time"

type scheduledTask struct {
	seq   uint64
	timer *time.Timer
}

func (r *Room) newTask(d time.Duration, fire func(seq uint64)) *scheduledTask {
	r.taskSeq++
	seq := r.taskSeq

	return &scheduledTask{
		seq:   seq,
		timer: time.AfterFunc(d, func() { fire(seq) }),
	}
}

// ArmDisconnectTimer schedules fire after grace, replacing any pending timer for userId.
// fire runs without the room lock and must call ClaimDisconnectTimer under it before acting.
func (r *Room) ArmDisconnectTimer(userId string, grace time.Duration, fire func(seq uint64)) uint64 {
	r.CancelDisconnectTimer(userId)

	task := r.newTask(grace, fire)
	r.timers[userId] = task

	return task.seq
}

// CancelDisconnectTimer removes the pending entry. A timer that already fired will fail
// to claim the entry and do nothing.
func (r *Room) CancelDisconnectTimer(userId string) bool {
	task, ok := r.timers[userId]
	if !ok {
		return false
	}

	task.timer.Stop()
	delete(r.timers, userId)

	return true
}

// ClaimDisconnectTimer consumes the entry if it is still the one identified by seq.
func (r *Room) ClaimDisconnectTimer(userId string, seq uint64) bool {
	task, ok := r.timers[userId]
	if !ok || task.seq != seq {
		return false
	}

	delete(r.timers, userId)

	return true
}

func (r *Room) HasDisconnectTimer(userId string) bool {
	_, ok := r.timers[userId]
	return ok
}

// ArmIdleTimer schedules teardown of a room nobody joined yet.
func (r *Room) ArmIdleTimer(d time.Duration, fire func(seq uint64)) uint64 {
	r.CancelIdleTimer()

	r.idle = r.newTask(d, fire)

	return r.idle.seq
}

func (r *Room) CancelIdleTimer() bool {
	if r.idle == nil {
		return false
	}

	r.idle.timer.Stop()
	r.idle = nil

	return true
}

func (r *Room) ClaimIdleTimer(seq uint64) bool {
	if r.idle == nil || r.idle.seq != seq {
		return false
	}

	r.idle = nil

	return true
}
