package webui

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Flopview</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 2px 10px; text-align: left; }
.dir { cursor: pointer; font-weight: bold; }
#status { color: #666; }
</style>
</head>
<body>
<h1>Flopview</h1>
<form id="upload">
  <input type="file" name="file" required>
  <button type="submit">Open image</button>
</form>
<p id="status"></p>
<table id="tree"><thead></thead><tbody></tbody></table>
<script>
let session = null;
let fields = [];
const status = document.getElementById("status");

async function api(method, path, body) {
  const opts = {method: method};
  if (body !== undefined) {
    opts.headers = {"Content-Type": "application/json"};
    opts.body = JSON.stringify(body);
  }
  const resp = await fetch(path, opts);
  const data = await resp.json();
  if (!resp.ok) throw new Error(data.error || resp.statusText);
  return data;
}

function render(listing, depth, after) {
  const tbody = document.querySelector("#tree tbody");
  for (const e of listing.entries) {
    const tr = document.createElement("tr");
    const name = document.createElement("td");
    name.style.paddingLeft = (depth * 16 + 10) + "px";
    if (e.dir) {
      name.textContent = e.name + "/";
      name.className = "dir";
      name.onclick = async () => {
        if (e.loaded) return;
        e.loaded = true;
        const sub = await api("POST", "/api/images/" + session + "/expand", {slot: e.slot, row: e.row});
        render(sub, depth + 1, tr);
      };
    } else {
      const a = document.createElement("a");
      a.href = "/api/images/" + session + "/file?slot=" + e.slot + "&row=" + e.row;
      a.textContent = e.name;
      name.appendChild(a);
    }
    tr.appendChild(name);
    for (const f of fields.slice(1)) {
      const td = document.createElement("td");
      td.textContent = e.meta[f] || "";
      tr.appendChild(td);
    }
    if (after) { after.after(tr); after = tr; } else { tbody.appendChild(tr); }
  }
}

document.getElementById("upload").onsubmit = async (ev) => {
  ev.preventDefault();
  document.querySelector("#tree tbody").innerHTML = "";
  try {
    if (session) await api("DELETE", "/api/images/" + session);
    const resp = await fetch("/api/images", {method: "POST", body: new FormData(ev.target)});
    const up = await resp.json();
    if (!resp.ok) throw new Error(up.error);
    session = up.id;
    const m = await api("POST", "/api/images/" + session + "/mount", {});
    fields = m.fields;
    status.textContent = up.name + ": " + m.format + " / " + m.filesystem + " (" + m.geometry + ") " + m.volume;
    document.querySelector("#tree thead").innerHTML =
      "<tr>" + fields.map(f => "<th>" + f + "</th>").join("") + "</tr>";
    render(await api("GET", "/api/images/" + session + "/tree"), 0, null);
  } catch (err) {
    status.textContent = err.message;
  }
};
</script>
</body>
</html>
`
