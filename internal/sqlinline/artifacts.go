package sqlinline

const QListBatchArtifacts = `--sql 84b3c47e-966a-4c3b-a4dd-11ee13b16f4c
select a.id, a.job_id, a.owner_id, a.item_index, a.storage_key, a.format,
       a.width, a.height, a.seed, a.size_bytes, a.created_at
from batch_artifacts a
where a.job_id = $1
order by a.item_index asc;
`

const QGetArtifact = `--sql 504ec9fe-213e-4034-8cd6-7b8f30afa926
select a.id, a.job_id, a.owner_id, a.item_index, a.storage_key, a.format,
       a.width, a.height, a.seed, a.size_bytes, a.created_at
from batch_artifacts a
where a.id = $1;
`
