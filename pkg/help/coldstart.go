// Package help holds the quick-start text printed by the coldstart command.
package help

const ColdstartYAML = `# linkmeta Quick Start

pipeline: "locate URL -> match rule -> fetch -> extract -> normalize -> resolve assets -> apply tag"

commands:
  extract_url: |
    linkmeta extract --url "https://book.douban.com/subject/4913064/"

  extract_block: |
    linkmeta blocks add "https://book.douban.com/subject/4913064/"
    linkmeta extract --block <id>

  preview_only: |
    linkmeta extract --url "https://book.douban.com/subject/4913064/" --dry-run

  pick_fields: |
    linkmeta extract --url "https://book.douban.com/subject/4913064/" --dry-run --fields title,author,rating

  force_rule: |
    linkmeta extract --url "https://example.com/" --rule Generic

  interactive: |
    # Opens a browser window; log in or solve a challenge, then press Enter.
    linkmeta extract --block <id> --interactive

  inspect_rules: |
    linkmeta rules list
    linkmeta rules check
    linkmeta rules match "https://movie.douban.com/subject/1292052/"

  inspect_results: |
    linkmeta blocks show <id>
    linkmeta schema show Book

config: |
  # linkmeta.yaml
  db_path: linkmeta.db
  assets_dir: linkmeta-assets
  cache_dir: .linkmeta-cache
  cache_ttl: 24h
  timezone: Asia/Shanghai
  include_default_rules: true
  rule_files:
    - rules/**/*.yaml

property_types:
  0: JSON
  1: Text
  2: BlockRefs
  3: Number
  4: Boolean
  5: DateTime
  6: TextChoices

rule_fields:
  declarative: |
    - name: title
      type: 1
      selector: "h1 span"
      filters: [collapse]
    - name: cover
      type: 1
      selector: "#mainpic img"
      attr: src
      subType: image
  script: |
    script:
      - "var t = document.querySelector('strong.rating_num');"
      - "return baseMeta.concat([{name: 'rating', type: PropertyType.Number, value: t.textContent}]);"
`
