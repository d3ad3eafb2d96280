package sqlinline

const QInsertStoryboardVariant = `--sql a4b4d637-451e-4d9d-8847-42b05ffc0f5e
insert into storyboard_variants (id, user_id, token_cost, status, started_at)
values ($1, $2, $3, 'pending', now());
`

const QInsertCharacterVideo = `--sql 246e87bd-a640-4a5c-bd8d-842b9913d3b9
insert into character_videos (id, user_id, token_cost, status, started_at)
values ($1, $2, $3, 'pending', now());
`

const QMarkVariantSubmitted = `--sql fad44885-f8fa-44d6-acb9-886f182053c3
update storyboard_variants
set task_id = $2,
    status  = 'generating'
where id = $1;
`

const QMarkCharacterSubmitted = `--sql cbb9b0de-31fe-4bc5-ad3a-242f1520388a
update character_videos
set task_id = $2,
    status  = 'generating'
where id = $1;
`

const QUpdateVariantStatus = `--sql 0a0c99d9-ef76-48f5-9ff0-ade50c41e227
update storyboard_variants
set status        = $2,
    progress      = coalesce($3, progress),
    video_url     = coalesce($4, video_url),
    thumbnail_url = coalesce($5, thumbnail_url),
    fail_reason   = coalesce($6, fail_reason),
    finished_at   = case when $7 then now() else finished_at end
where id = $1;
`

const QUpdateCharacterStatus = `--sql d60637b8-ff4d-4670-927b-d658acd0b45c
update character_videos
set status        = $2,
    progress      = coalesce($3, progress),
    video_url     = coalesce($4, video_url),
    thumbnail_url = coalesce($5, thumbnail_url),
    fail_reason   = coalesce($6, fail_reason),
    finished_at   = case when $7 then now() else finished_at end
where id = $1;
`

const QVariantBilling = `--sql d72d8231-d48b-4606-a2fe-5a198d9b33f9
select user_id, token_cost
from storyboard_variants
where id = $1;
`

const QCharacterBilling = `--sql 749b7d42-222e-47ff-8689-a1f1240f8e8b
select user_id, token_cost
from character_videos
where id = $1;
`

const QUnfinishedVariants = `--sql ba3e15e0-9562-4f47-a2d0-437785dde5a0
select id, task_id
from storyboard_variants
where status in ('queued', 'generating')
  and task_id is not null
  and task_id <> '';
`

const QUnfinishedCharacters = `--sql dc0de5e9-1c64-4830-be6f-ea98c70e84c0
select id, task_id
from character_videos
where status in ('queued', 'generating')
  and task_id is not null
  and task_id <> '';
`

const QGetVariant = `--sql 15a3a990-9e03-459e-9c23-55561e5eb1bc
select id, user_id, token_cost, coalesce(task_id, ''), status,
       coalesce(progress, ''), coalesce(video_url, ''), coalesce(thumbnail_url, ''),
       coalesce(fail_reason, ''), started_at, finished_at
from storyboard_variants
where id = $1 and user_id = $2;
`

const QGetCharacterVideo = `--sql 008666dd-378c-4f29-b234-d080e85e0ec3
select id, user_id, token_cost, coalesce(task_id, ''), status,
       coalesce(progress, ''), coalesce(video_url, ''), coalesce(thumbnail_url, ''),
       coalesce(fail_reason, ''), started_at, finished_at
from character_videos
where id = $1 and user_id = $2;
`
