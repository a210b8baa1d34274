// Package confirm decides, per poll cycle, which rows of a query are new enough to notify.
//
// Rows can appear and vanish between polls while the upstream database catches up, so by
// default a row is first parked as pending and only notified when a later cycle sees it
// again. Rows that stop appearing are forgotten.
package confirm

import "etl-notifier/internal/model"

// Result is the outcome of evaluating one query's rows.
type Result struct {
	// Notify holds the records to send now, in input order.
	Notify []model.Record
	// Next is the complete replacement for the query's cache entry.
	Next map[string]model.Status
}

// Evaluate classifies records against the statuses stored by the previous cycle.
// existing may be nil. Keys missing from records are dropped from Next.
func Evaluate(records []model.Record, existing map[string]model.Status, policy model.Policy) Result {
	res := Result{Next: make(map[string]model.Status, len(records))}
	notified := make(map[string]struct{})

	for _, r := range records {
		key := r.Key()
		prev, seen := existing[key]

		var notify bool
		if policy.Immediate(r) {
			res.Next[key] = model.StatusConfirmed
			notify = !seen
		} else {
			switch prev {
			case model.StatusPending:
				res.Next[key] = model.StatusConfirmed
				notify = true
			case model.StatusConfirmed:
				res.Next[key] = model.StatusConfirmed
			default:
				// an unrecognized stored status is treated like an unknown key
				if _, dup := res.Next[key]; !dup {
					res.Next[key] = model.StatusPending
				}
			}
		}

		if !notify {
			continue
		}
		if _, dup := notified[key]; dup {
			continue
		}
		notified[key] = struct{}{}
		res.Notify = append(res.Notify, r)
	}
	return res
}
