// Package taskgate provides a folder-partitioned task lifecycle engine with
// human-in-the-loop approval gating.
//
// Inbound tasks arrive as self-describing records (YAML frontmatter header
// plus free-text body) in the Needs_Action partition. A polling sweep
// classifies each task's priority, generates a plan with a checklist and an
// approval requirement, and either executes the task directly or opens an
// approval request that a human resolves purely by moving the record between
// the Pending_Approval, Approved and Rejected partitions. Pending requests
// auto-reject after a fixed time-to-live. Terminal records are archived into
// the Done partition and aggregated into a running analytics snapshot.
//
// End-users typically interact with the engine via the Service facade:
//
//	srv, _ := taskgate.New(taskgate.WithBaseURL("file:///var/lib/taskgate"))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	defer rt.Shutdown()
//
// For more details see the individual sub-packages.
package taskgate
