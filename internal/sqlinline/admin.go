package sqlinline

// Operator queries. These skip owner scoping and are reachable only from the
// admin CLI, never from the HTTP surface.

const QAdminCancelBatch = `--sql ef45bf84-a1fd-4dc3-949c-e60b2187cd02
update batch_jobs
set status = 'cancelled',
    updated_at = now()
where id = $1
  and status in ('pending', 'processing', 'paused')
returning id, status;
`

const QAdminRequeueBatch = `--sql bccae60a-6ca6-45d1-b295-8322d63ec9aa
update batch_jobs
set next_run_at = now(),
    attempt = 0,
    updated_at = now()
where id = $1
  and status in ('pending', 'processing')
returning id, status, next_run_at;
`
