package sqlinline

const QCreateBatch = `--sql f2fd8e57-f016-47b0-bc44-4fc876b9b660
insert into batch_jobs (
  id, owner_id, status, total_count, completed_count, failed_count,
  current_index, attempt, params, next_run_at
)
values ($1, $2, 'pending', $3, 0, 0, 0, 0, $4, now())
returning created_at, updated_at;
`

const QGetBatch = `--sql c2b02082-17ee-4f1e-94b5-264f4cd0f5f1
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from batch_jobs b
where b.id = $1;
`

const QListActiveBatches = `--sql 8cf9494d-065a-4a69-b09a-c71a10e06058
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from batch_jobs b
where b.owner_id = $1
  and b.status not in ('completed', 'cancelled', 'failed')
order by b.created_at desc;
`

const QSetBatchStatus = `--sql b62a04f9-3390-4519-bb9b-0bef59b1b35d
with upd as (
  update batch_jobs
  set status = $3,
      next_run_at = $4,
      updated_at = now()
  where id = $1
    and owner_id = $2
    and status = any($5::text[])
  returning *
)
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from upd b;
`

const QClaimDueBatch = `--sql e2eb1251-51da-4ea5-8059-5afd58ed03e9
with next_job as (
  select id
  from batch_jobs
  where status in ('pending', 'processing')
    and next_run_at <= now()
  order by next_run_at asc
  for update skip locked
  limit 1
),
claimed as (
  update batch_jobs
  set status = 'processing',
      next_run_at = now() + make_interval(secs => $1),
      updated_at = now()
  where id in (select id from next_job)
  returning *
)
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from claimed b;
`

const QRecordBatchSuccess = `--sql 4d98631b-0caa-466c-bdfe-3890ccf55f52
with upd as (
  update batch_jobs
  set completed_count = completed_count + 1,
      current_index = current_index + 1,
      attempt = 0,
      next_run_at = now(),
      updated_at = now()
  where id = $1
    and current_index = $2
    and status in ('processing', 'paused', 'cancelled')
  returning *
),
art as (
  insert into batch_artifacts (
    id, job_id, owner_id, item_index, storage_key, format,
    width, height, seed, size_bytes
  )
  select $3, u.id, u.owner_id, $2, $4, $5, $6, $7, $8, $9
  from upd u
)
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from upd b;
`

const QRecordBatchFailure = `--sql 913c8a35-40e8-47f7-9c37-6a9fb83af80e
with upd as (
  update batch_jobs
  set failed_count = failed_count + 1,
      current_index = current_index + 1,
      attempt = 0,
      error_message = $3,
      next_run_at = now(),
      updated_at = now()
  where id = $1
    and current_index = $2
    and status in ('processing', 'paused', 'cancelled')
  returning *
)
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from upd b;
`

const QRescheduleBatch = `--sql 5285383f-6a46-4a04-88d4-db2cf5f022cf
with upd as (
  update batch_jobs
  set attempt = $3,
      next_run_at = $4,
      updated_at = now()
  where id = $1
    and current_index = $2
    and status in ('processing', 'paused')
  returning *
)
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from upd b;
`

const QFinalizeBatch = `--sql fd502cee-8857-46bd-ba59-cfdcc8389bac
with upd as (
  update batch_jobs
  set status = $2,
      updated_at = now()
  where id = $1
    and status = 'processing'
    and current_index >= total_count
  returning *
)
select b.id, b.owner_id, b.status, b.total_count, b.completed_count,
       b.failed_count, b.current_index, b.attempt, b.params, b.error_message,
       b.next_run_at, b.created_at, b.updated_at,
       coalesce((select array_agg(a.id::text order by a.item_index)
                 from batch_artifacts a where a.job_id = b.id), '{}')
from upd b;
`
