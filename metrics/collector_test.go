package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("strict", "fs", "lode", "fs", "job-001")

	c.IncItemStarted()
	c.IncItemStarted()
	c.IncItemSucceeded()
	c.IncItemFailed()
	c.IncItemFault()
	c.IncLeafConverted()
	c.IncLeafConverted()
	c.IncLeafPartial()
	c.IncLeafFailed()
	c.IncLeafIgnored()
	c.IncLeafNonMatching()
	c.IncDirectorySkipped()
	c.IncEnumerationFailure()
	c.IncConverterLaunchFailure()
	c.IncConverterCrash()
	c.IncIPCDecodeErrors()
	c.AddConversionTime(2 * time.Second)
	c.AddConversionTime(time.Second)
	c.IncArtifactRegistered()
	c.IncArtifactRegistryFailure()
	c.IncLodeWriteSuccess()
	c.IncLodeWriteFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"ItemsStarted", s.ItemsStarted, 2},
		{"ItemsSucceeded", s.ItemsSucceeded, 1},
		{"ItemsFailed", s.ItemsFailed, 1},
		{"ItemFaults", s.ItemFaults, 1},
		{"LeavesConverted", s.LeavesConverted, 2},
		{"LeavesPartial", s.LeavesPartial, 1},
		{"LeavesFailed", s.LeavesFailed, 1},
		{"LeavesIgnored", s.LeavesIgnored, 1},
		{"LeavesNonMatching", s.LeavesNonMatching, 1},
		{"DirectoriesSkipped", s.DirectoriesSkipped, 1},
		{"EnumerationFailures", s.EnumerationFailures, 1},
		{"ConverterLaunchFailure", s.ConverterLaunchFailure, 1},
		{"ConverterCrash", s.ConverterCrash, 1},
		{"IPCDecodeErrors", s.IPCDecodeErrors, 1},
		{"ArtifactsRegistered", s.ArtifactsRegistered, 1},
		{"ArtifactRegistryFail", s.ArtifactRegistryFail, 1},
		{"LodeWriteSuccess", s.LodeWriteSuccess, 1},
		{"LodeWriteFailure", s.LodeWriteFailure, 1},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Errorf("%s = %d, want %d", chk.name, chk.got, chk.want)
		}
	}
	if s.ConversionTime != 3*time.Second {
		t.Errorf("ConversionTime = %v, want 3s", s.ConversionTime)
	}
	if s.Policy != "strict" || s.RegistryBackend != "lode" || s.JobID != "job-001" {
		t.Errorf("dimensions not preserved: %+v", s)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.IncItemStarted()
	c.IncLeafConverted()
	c.AddConversionTime(time.Second)
	c.AbsorbPolicyStats(1, 1, 0)

	if s := c.Snapshot(); s.ItemsStarted != 0 {
		t.Errorf("nil collector snapshot = %+v, want zero", s)
	}
}

func TestCollector_AbsorbPolicyStats(t *testing.T) {
	c := NewCollector("buffered", "fs", "memory", "fs", "")
	c.AbsorbPolicyStats(5, 4, 1)

	s := c.Snapshot()
	if s.NodesReceived != 5 || s.NodesPersisted != 4 || s.SinkErrors != 1 {
		t.Errorf("absorbed stats = %d/%d/%d, want 5/4/1", s.NodesReceived, s.NodesPersisted, s.SinkErrors)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("strict", "fs", "lode", "fs", "job-001")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncLeafConverted()
			c.IncArtifactRegistered()
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.LeavesConverted != 50 || s.ArtifactsRegistered != 50 {
		t.Errorf("concurrent counts = %d/%d, want 50/50", s.LeavesConverted, s.ArtifactsRegistered)
	}
}
